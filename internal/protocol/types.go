// Package protocol holds the language server protocol types the gateway
// reads or rewrites. Payloads the gateway only relays stay json.RawMessage.
package protocol

import "encoding/json"

// Position is a zero-based line/character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span in a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a document URI.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// BackendLocation is a Location tagged with the backend that reported it.
type BackendLocation struct {
	URI              string `json:"uri"`
	Range            Range  `json:"range"`
	LanguageServerID string `json:"languageServerId"`
}

// TextDocumentIdentifier identifies a document.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem is an opened document with its content.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// VersionedTextDocumentIdentifier identifies a specific document version.
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version *int   `json:"version"`
}

// TextDocumentPositionParams is the common shape of position requests.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// ReferenceContext controls textDocument/references.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// ReferenceParams are the params of textDocument/references.
type ReferenceParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      ReferenceContext       `json:"context"`
}

// CompletionParams are the params of textDocument/completion.
type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      json.RawMessage        `json:"context,omitempty"`
}

// DocumentSymbolParams are the params of textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// FormattingOptions is relayed as-is; servers accept extra properties.
type FormattingOptions map[string]interface{}

// DocumentFormattingParams are the params of textDocument/formatting.
type DocumentFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Options      FormattingOptions      `json:"options"`
}

// DocumentRangeFormattingParams are the params of textDocument/rangeFormatting.
type DocumentRangeFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Options      FormattingOptions      `json:"options"`
}

// DocumentOnTypeFormattingParams are the params of textDocument/onTypeFormatting.
type DocumentOnTypeFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Ch           string                 `json:"ch"`
	Options      FormattingOptions      `json:"options"`
}

// CodeActionParams are the params of textDocument/codeAction.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      json.RawMessage        `json:"context"`
}

// RenameParams are the params of textDocument/rename.
type RenameParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	NewName      string                 `json:"newName"`
}

// WorkspaceSymbolParams are the params of workspace/symbol.
type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

// DidOpenTextDocumentParams are the params of textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams are the params of textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent is one change; a nil Range means full text.
type TextDocumentContentChangeEvent struct {
	Range       *Range `json:"range,omitempty"`
	RangeLength *int   `json:"rangeLength,omitempty"`
	Text        string `json:"text"`
}

// DidCloseTextDocumentParams are the params of textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveTextDocumentParams are the params of textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentEdit is a versioned set of edits on one document.
type TextDocumentEdit struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []TextEdit                      `json:"edits"`
}

// WorkspaceEdit is a set of edits over many documents.
type WorkspaceEdit struct {
	Changes         map[string][]TextEdit `json:"changes,omitempty"`
	DocumentChanges []TextDocumentEdit    `json:"documentChanges,omitempty"`
}

// ExtendedTextEdit is a TextEdit carrying the text of the line it starts on
// so callers can preview a rename without opening the file.
type ExtendedTextEdit struct {
	Range       Range  `json:"range"`
	NewText     string `json:"newText"`
	LineText    string `json:"lineText,omitempty"`
	InLineStart int    `json:"inLineStart"`
	InLineEnd   int    `json:"inLineEnd"`
}

// ExtendedTextDocumentEdit groups extended edits of one document.
type ExtendedTextDocumentEdit struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []ExtendedTextEdit              `json:"edits"`
}

// ExtendedWorkspaceEdit is one backend's rename answer with workspace
// paths and line previews.
type ExtendedWorkspaceEdit struct {
	DocumentChanges []ExtendedTextDocumentEdit `json:"documentChanges"`
}

// RenameResult holds one workspace edit per backend that answered.
type RenameResult struct {
	Edits map[string]ExtendedWorkspaceEdit `json:"renameResults"`
}

// SymbolKind is the numeric LSP symbol kind.
type SymbolKind int

// SymbolInformation is the flat symbol shape; it carries a Location.
type SymbolInformation struct {
	Name             string     `json:"name"`
	Kind             SymbolKind `json:"kind"`
	Deprecated       bool       `json:"deprecated,omitempty"`
	Location         Location   `json:"location"`
	ContainerName    string     `json:"containerName,omitempty"`
	LanguageServerID string     `json:"languageServerId,omitempty"`
}

// DocumentSymbol is the hierarchical symbol shape. The gateway flattens
// it into SymbolInformation.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Deprecated     bool             `json:"deprecated,omitempty"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// LocationLink is the alternative definition answer shape.
type LocationLink struct {
	OriginSelectionRange *Range `json:"originSelectionRange,omitempty"`
	TargetURI            string `json:"targetUri"`
	TargetRange          Range  `json:"targetRange"`
	TargetSelectionRange Range  `json:"targetSelectionRange"`
}

// DocumentHighlight is a highlighted range.
type DocumentHighlight struct {
	Range Range `json:"range"`
	Kind  int   `json:"kind,omitempty"`
}

// Hover is the merged hover answer. Contents is a list of MarkedString or
// MarkupContent values, one or more per backend.
type Hover struct {
	Contents []json.RawMessage `json:"contents"`
	Range    *Range            `json:"range,omitempty"`
}

// SignatureHelp is relayed from the first backend with signatures.
type SignatureHelp struct {
	Signatures      []json.RawMessage `json:"signatures"`
	ActiveSignature *int              `json:"activeSignature,omitempty"`
	ActiveParameter *int              `json:"activeParameter,omitempty"`
}

// CompletionList is the backend-side completion result.
type CompletionList struct {
	IsIncomplete bool              `json:"isIncomplete"`
	Items        []json.RawMessage `json:"items"`
}

// ExtendedCompletionItem tags a backend completion item with its origin so
// completionItem/resolve can be routed back.
type ExtendedCompletionItem struct {
	Item             json.RawMessage `json:"item"`
	LanguageServerID string          `json:"languageServerId"`
}

// ExtendedCompletionList is the merged completion answer.
type ExtendedCompletionList struct {
	IsIncomplete bool                     `json:"isIncomplete"`
	Items        []ExtendedCompletionItem `json:"items"`
}

// Diagnostic is a single problem reported by a backend.
type Diagnostic struct {
	Range    Range           `json:"range"`
	Severity int             `json:"severity,omitempty"`
	Code     json.RawMessage `json:"code,omitempty"`
	Source   string          `json:"source,omitempty"`
	Message  string          `json:"message"`
}

// PublishDiagnosticsParams is pushed by backends.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// ExtendedPublishDiagnosticsParams tags diagnostics with their backend.
type ExtendedPublishDiagnosticsParams struct {
	LanguageServerID string                   `json:"languageServerId"`
	Params           PublishDiagnosticsParams `json:"params"`
}

// MessageType is the severity of window messages.
type MessageType int

const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

// ShowMessageParams is the payload of window/showMessage and window/logMessage.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// MessageActionItem is a button offered by window/showMessageRequest.
type MessageActionItem struct {
	Title string `json:"title"`
}

// ShowMessageRequestParams is the payload of window/showMessageRequest.
type ShowMessageRequestParams struct {
	Type    MessageType         `json:"type"`
	Message string              `json:"message"`
	Actions []MessageActionItem `json:"actions,omitempty"`
}

// FileChangeType is the kind of a watched-file event.
type FileChangeType int

const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileEvent is one watched-file change.
type FileEvent struct {
	URI  string         `json:"uri"`
	Type FileChangeType `json:"type"`
}

// DidChangeWatchedFilesParams is sent to backends on file changes.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// GatewayFileEvent is a caller-reported file change on a workspace path.
type GatewayFileEvent struct {
	Path string         `json:"path"`
	Type FileChangeType `json:"type"`
}

// FileContentParams ask one backend for the content of a URI it owns.
type FileContentParams struct {
	LanguageServerID string `json:"languageServerId"`
	URI              string `json:"uri"`
}

// SnippetParams request line snippets around ranges of one document.
type SnippetParams struct {
	URI         string  `json:"uri"`
	Ranges      []Range `json:"ranges"`
	LinesAround int     `json:"linesAround"`
}

// SnippetResult is the text around one requested range. RangeInSnippet is
// the requested range relative to the snippet's first line.
type SnippetResult struct {
	Range          Range  `json:"range"`
	Snippet        string `json:"snippet"`
	StartLine      int    `json:"startLine"`
	RangeInSnippet Range  `json:"rangeInSnippet"`
}

// EditFileParams apply plain text edits to a workspace file.
type EditFileParams struct {
	URI   string     `json:"uri"`
	Edits []TextEdit `json:"edits"`
}

// EditFileResult describes the file after the edits were applied.
type EditFileResult struct {
	URI    string `json:"uri"`
	Length int    `json:"length"`
	// Diff is a unified diff of the change; empty when nothing changed.
	Diff string `json:"diff,omitempty"`
}
