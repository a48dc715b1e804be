package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Flag is a capability that servers advertise either as a boolean or as an
// options object. Any object counts as true.
type Flag bool

// UnmarshalJSON accepts true/false, null, or an options object.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	case len(data) > 0 && data[0] == '{':
		*f = true
	default:
		return fmt.Errorf("capability flag: unexpected value %s", data)
	}
	return nil
}

// TextDocumentSyncKind is how a backend wants document changes delivered.
type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

// rank orders sync kinds as full > incremental > none.
func (k TextDocumentSyncKind) rank() int {
	switch k {
	case SyncFull:
		return 2
	case SyncIncremental:
		return 1
	default:
		return 0
	}
}

// SaveOptions is the save sub-option of TextDocumentSyncOptions.
type SaveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

// TextDocumentSyncOptions is the record form of the sync capability.
type TextDocumentSyncOptions struct {
	OpenClose         bool                 `json:"openClose,omitempty"`
	Change            TextDocumentSyncKind `json:"change"`
	WillSave          bool                 `json:"willSave,omitempty"`
	WillSaveWaitUntil bool                 `json:"willSaveWaitUntil,omitempty"`
	Save              *SaveOptions         `json:"save,omitempty"`
}

// TextDocumentSync holds either the scalar kind or the options record.
// Exactly one of Kind and Options is set on a decoded value.
type TextDocumentSync struct {
	Kind    *TextDocumentSyncKind
	Options *TextDocumentSyncOptions
}

// SyncKind creates the scalar form.
func SyncKind(k TextDocumentSyncKind) *TextDocumentSync {
	return &TextDocumentSync{Kind: &k}
}

// Mode returns the effective change kind of either form.
func (s *TextDocumentSync) Mode() TextDocumentSyncKind {
	switch {
	case s == nil:
		return SyncNone
	case s.Options != nil:
		return s.Options.Change
	case s.Kind != nil:
		return *s.Kind
	}
	return SyncNone
}

func (s TextDocumentSync) MarshalJSON() ([]byte, error) {
	switch {
	case s.Options != nil:
		return json.Marshal(s.Options)
	case s.Kind != nil:
		return json.Marshal(*s.Kind)
	}
	return []byte("null"), nil
}

func (s *TextDocumentSync) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var opts TextDocumentSyncOptions
		if err := json.Unmarshal(data, &opts); err != nil {
			return err
		}
		*s = TextDocumentSync{Options: &opts}
		return nil
	}
	var k TextDocumentSyncKind
	if err := json.Unmarshal(data, &k); err != nil {
		return fmt.Errorf("textDocumentSync: %w", err)
	}
	*s = TextDocumentSync{Kind: &k}
	return nil
}

// CompletionOptions advertises completion support.
type CompletionOptions struct {
	ResolveProvider   bool     `json:"resolveProvider,omitempty"`
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// SignatureHelpOptions advertises signature help support.
type SignatureHelpOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// DocumentOnTypeFormattingOptions advertises on-type formatting.
type DocumentOnTypeFormattingOptions struct {
	FirstTriggerCharacter string   `json:"firstTriggerCharacter"`
	MoreTriggerCharacter  []string `json:"moreTriggerCharacter,omitempty"`
}

// ExecuteCommandOptions lists the commands a server executes.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

// CodeLensOptions advertises code lens support.
type CodeLensOptions struct {
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// DocumentLinkOptions advertises document link support.
type DocumentLinkOptions struct {
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// ServerCapabilities is the capability set a backend returns from
// initialize and the gateway returns from languageServer/initialize.
type ServerCapabilities struct {
	TextDocumentSync                 *TextDocumentSync                `json:"textDocumentSync,omitempty"`
	HoverProvider                    Flag                             `json:"hoverProvider,omitempty"`
	CompletionProvider               *CompletionOptions               `json:"completionProvider,omitempty"`
	SignatureHelpProvider            *SignatureHelpOptions            `json:"signatureHelpProvider,omitempty"`
	DefinitionProvider               Flag                             `json:"definitionProvider,omitempty"`
	TypeDefinitionProvider           Flag                             `json:"typeDefinitionProvider,omitempty"`
	ImplementationProvider           Flag                             `json:"implementationProvider,omitempty"`
	ReferencesProvider               Flag                             `json:"referencesProvider,omitempty"`
	DocumentHighlightProvider        Flag                             `json:"documentHighlightProvider,omitempty"`
	DocumentSymbolProvider           Flag                             `json:"documentSymbolProvider,omitempty"`
	WorkspaceSymbolProvider          Flag                             `json:"workspaceSymbolProvider,omitempty"`
	CodeActionProvider               Flag                             `json:"codeActionProvider,omitempty"`
	CodeLensProvider                 *CodeLensOptions                 `json:"codeLensProvider,omitempty"`
	DocumentFormattingProvider       Flag                             `json:"documentFormattingProvider,omitempty"`
	DocumentRangeFormattingProvider  Flag                             `json:"documentRangeFormattingProvider,omitempty"`
	DocumentOnTypeFormattingProvider *DocumentOnTypeFormattingOptions `json:"documentOnTypeFormattingProvider,omitempty"`
	RenameProvider                   Flag                             `json:"renameProvider,omitempty"`
	DocumentLinkProvider             *DocumentLinkOptions             `json:"documentLinkProvider,omitempty"`
	ExecuteCommandProvider           *ExecuteCommandOptions           `json:"executeCommandProvider,omitempty"`
}

// ClientInfo names the gateway to backends.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder is a root the backend should index.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// DynamicRegistration is the common {dynamicRegistration} client option.
type DynamicRegistration struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

// WorkspaceClientCapabilities declares workspace features of the gateway.
type WorkspaceClientCapabilities struct {
	ApplyEdit             bool                `json:"applyEdit"`
	DidChangeWatchedFiles DynamicRegistration `json:"didChangeWatchedFiles"`
	Symbol                DynamicRegistration `json:"symbol"`
	ExecuteCommand        DynamicRegistration `json:"executeCommand"`
	WorkspaceFolders      bool                `json:"workspaceFolders"`
}

// SynchronizationCapabilities declares document sync features.
type SynchronizationCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
	WillSave            bool `json:"willSave"`
	WillSaveWaitUntil   bool `json:"willSaveWaitUntil"`
	DidSave             bool `json:"didSave"`
}

// CompletionItemCapabilities declares completion item features.
type CompletionItemCapabilities struct {
	SnippetSupport bool `json:"snippetSupport"`
}

// CompletionClientCapabilities declares completion features.
type CompletionClientCapabilities struct {
	DynamicRegistration bool                       `json:"dynamicRegistration"`
	CompletionItem      CompletionItemCapabilities `json:"completionItem"`
}

// HoverClientCapabilities declares hover features.
type HoverClientCapabilities struct {
	DynamicRegistration bool     `json:"dynamicRegistration"`
	ContentFormat       []string `json:"contentFormat"`
}

// TextDocumentClientCapabilities declares document features of the gateway.
type TextDocumentClientCapabilities struct {
	Synchronization    SynchronizationCapabilities  `json:"synchronization"`
	Completion         CompletionClientCapabilities `json:"completion"`
	Hover              HoverClientCapabilities      `json:"hover"`
	SignatureHelp      DynamicRegistration          `json:"signatureHelp"`
	References         DynamicRegistration          `json:"references"`
	DocumentHighlight  DynamicRegistration          `json:"documentHighlight"`
	DocumentSymbol     DynamicRegistration          `json:"documentSymbol"`
	Formatting         DynamicRegistration          `json:"formatting"`
	RangeFormatting    DynamicRegistration          `json:"rangeFormatting"`
	OnTypeFormatting   DynamicRegistration          `json:"onTypeFormatting"`
	Definition         DynamicRegistration          `json:"definition"`
	CodeAction         DynamicRegistration          `json:"codeAction"`
	Rename             DynamicRegistration          `json:"rename"`
	PublishDiagnostics map[string]bool              `json:"publishDiagnostics"`
}

// ClientCapabilities is what the gateway declares in every handshake.
type ClientCapabilities struct {
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

// DefaultClientCapabilities returns the features the gateway relays.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: WorkspaceClientCapabilities{
			ApplyEdit:             false,
			DidChangeWatchedFiles: DynamicRegistration{DynamicRegistration: false},
			WorkspaceFolders:      true,
		},
		TextDocument: TextDocumentClientCapabilities{
			Synchronization: SynchronizationCapabilities{DidSave: true},
			Completion: CompletionClientCapabilities{
				CompletionItem: CompletionItemCapabilities{SnippetSupport: true},
			},
			Hover:              HoverClientCapabilities{ContentFormat: []string{"markdown", "plaintext"}},
			PublishDiagnostics: map[string]bool{"relatedInformation": false},
		},
	}
}

// InitializeParams are sent in the initialize handshake.
type InitializeParams struct {
	ProcessID             *int               `json:"processId"`
	ClientInfo            *ClientInfo        `json:"clientInfo,omitempty"`
	RootPath              string             `json:"rootPath,omitempty"`
	RootURI               string             `json:"rootUri"`
	InitializationOptions interface{}        `json:"initializationOptions,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	Trace                 string             `json:"trace,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// InitializeResult is the backend's answer to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ClientInfo        `json:"serverInfo,omitempty"`
}

// GatewayInitializeParams are the caller's languageServer/initialize params.
type GatewayInitializeParams struct {
	Path string `json:"path"`
}

// LanguageRegex is one {languageId, namePattern} pair.
type LanguageRegex struct {
	LanguageID  string `json:"languageId"`
	NamePattern string `json:"namePattern"`
}
