package protocol

// MergeCapabilities combines two capability sets into a new one. Neither
// input is modified. The fold is left-biased for scalar sub-fields of
// option records, so callers must reduce in a stable order.
func MergeCapabilities(left, right *ServerCapabilities) *ServerCapabilities {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}

	return &ServerCapabilities{
		TextDocumentSync:                 mergeSync(left.TextDocumentSync, right.TextDocumentSync),
		HoverProvider:                    left.HoverProvider || right.HoverProvider,
		CompletionProvider:               mergeCompletion(left.CompletionProvider, right.CompletionProvider),
		SignatureHelpProvider:            mergeSignatureHelp(left.SignatureHelpProvider, right.SignatureHelpProvider),
		DefinitionProvider:               left.DefinitionProvider || right.DefinitionProvider,
		TypeDefinitionProvider:           left.TypeDefinitionProvider || right.TypeDefinitionProvider,
		ImplementationProvider:           left.ImplementationProvider || right.ImplementationProvider,
		ReferencesProvider:               left.ReferencesProvider || right.ReferencesProvider,
		DocumentHighlightProvider:        left.DocumentHighlightProvider || right.DocumentHighlightProvider,
		DocumentSymbolProvider:           left.DocumentSymbolProvider || right.DocumentSymbolProvider,
		WorkspaceSymbolProvider:          left.WorkspaceSymbolProvider || right.WorkspaceSymbolProvider,
		CodeActionProvider:               left.CodeActionProvider || right.CodeActionProvider,
		CodeLensProvider:                 mergeCodeLens(left.CodeLensProvider, right.CodeLensProvider),
		DocumentFormattingProvider:       left.DocumentFormattingProvider || right.DocumentFormattingProvider,
		DocumentRangeFormattingProvider:  left.DocumentRangeFormattingProvider || right.DocumentRangeFormattingProvider,
		DocumentOnTypeFormattingProvider: mergeOnTypeFormatting(left.DocumentOnTypeFormattingProvider, right.DocumentOnTypeFormattingProvider),
		RenameProvider:                   left.RenameProvider || right.RenameProvider,
		DocumentLinkProvider:             mergeDocumentLink(left.DocumentLinkProvider, right.DocumentLinkProvider),
		ExecuteCommandProvider:           mergeExecuteCommand(left.ExecuteCommandProvider, right.ExecuteCommandProvider),
	}
}

// ReduceCapabilities folds caps left to right starting from an empty set.
func ReduceCapabilities(caps []*ServerCapabilities) *ServerCapabilities {
	acc := &ServerCapabilities{}
	for _, c := range caps {
		acc = MergeCapabilities(acc, c)
	}
	return acc
}

func mergeSync(left, right *TextDocumentSync) *TextDocumentSync {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	// a scalar against a record is not ranked: the right side wins
	if (left.Options == nil) != (right.Options == nil) {
		return right
	}
	if left.Mode().rank() > right.Mode().rank() {
		return left
	}
	return right
}

func mergeCompletion(left, right *CompletionOptions) *CompletionOptions {
	if left == nil || right == nil {
		return pick(left, right)
	}
	return &CompletionOptions{
		ResolveProvider:   left.ResolveProvider || right.ResolveProvider,
		TriggerCharacters: union(left.TriggerCharacters, right.TriggerCharacters),
	}
}

func mergeSignatureHelp(left, right *SignatureHelpOptions) *SignatureHelpOptions {
	if left == nil || right == nil {
		return pick(left, right)
	}
	return &SignatureHelpOptions{
		TriggerCharacters: union(left.TriggerCharacters, right.TriggerCharacters),
	}
}

func mergeOnTypeFormatting(left, right *DocumentOnTypeFormattingOptions) *DocumentOnTypeFormattingOptions {
	if left == nil || right == nil {
		return pick(left, right)
	}
	return &DocumentOnTypeFormattingOptions{
		FirstTriggerCharacter: left.FirstTriggerCharacter,
		MoreTriggerCharacter:  union(left.MoreTriggerCharacter, right.MoreTriggerCharacter),
	}
}

func mergeExecuteCommand(left, right *ExecuteCommandOptions) *ExecuteCommandOptions {
	if left == nil || right == nil {
		return pick(left, right)
	}
	return &ExecuteCommandOptions{Commands: union(left.Commands, right.Commands)}
}

func mergeCodeLens(left, right *CodeLensOptions) *CodeLensOptions {
	if left == nil || right == nil {
		return pick(left, right)
	}
	return &CodeLensOptions{ResolveProvider: left.ResolveProvider || right.ResolveProvider}
}

func mergeDocumentLink(left, right *DocumentLinkOptions) *DocumentLinkOptions {
	if left == nil || right == nil {
		return pick(left, right)
	}
	return &DocumentLinkOptions{ResolveProvider: left.ResolveProvider || right.ResolveProvider}
}

func pick[T any](left, right *T) *T {
	if left != nil {
		return left
	}
	return right
}

// union concatenates a and b, dropping repeats and keeping first occurrence.
func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
