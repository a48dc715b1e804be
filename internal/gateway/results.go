package gateway

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"lsgw/internal/protocol"
)

// Backends answer several requests with either a single value or a list,
// and with more than one record shape. These helpers normalize the raw
// answers before they are merged.

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// locationOrLink decodes both Location and LocationLink.
type locationOrLink struct {
	URI                  string          `json:"uri"`
	Range                protocol.Range  `json:"range"`
	TargetURI            string          `json:"targetUri"`
	TargetSelectionRange *protocol.Range `json:"targetSelectionRange"`
	TargetRange          *protocol.Range `json:"targetRange"`
}

func (l locationOrLink) location() protocol.Location {
	if l.URI == "" && l.TargetURI != "" {
		loc := protocol.Location{URI: l.TargetURI}
		switch {
		case l.TargetSelectionRange != nil:
			loc.Range = *l.TargetSelectionRange
		case l.TargetRange != nil:
			loc.Range = *l.TargetRange
		}
		return loc
	}
	return protocol.Location{URI: l.URI, Range: l.Range}
}

// decodeLocations accepts Location, []Location and []LocationLink.
func decodeLocations(raw json.RawMessage) ([]protocol.Location, error) {
	if isNull(raw) {
		return nil, nil
	}
	if !isArray(raw) {
		var one locationOrLink
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		return []protocol.Location{one.location()}, nil
	}
	var many []locationOrLink
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	out := make([]protocol.Location, 0, len(many))
	for _, l := range many {
		out = append(out, l.location())
	}
	return out, nil
}

// decodeCompletion accepts CompletionList and []CompletionItem.
func decodeCompletion(raw json.RawMessage) (protocol.CompletionList, error) {
	var list protocol.CompletionList
	if isNull(raw) {
		return list, nil
	}
	if isArray(raw) {
		err := json.Unmarshal(raw, &list.Items)
		return list, err
	}
	err := json.Unmarshal(raw, &list)
	return list, err
}

// decodeHoverContents splits MarkedString, MarkedString[] and
// MarkupContent into a flat list.
func decodeHoverContents(raw json.RawMessage) ([]json.RawMessage, *protocol.Range, error) {
	if isNull(raw) {
		return nil, nil, nil
	}
	var hover struct {
		Contents json.RawMessage `json:"contents"`
		Range    *protocol.Range `json:"range"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil {
		return nil, nil, err
	}
	if isNull(hover.Contents) {
		return nil, hover.Range, nil
	}
	if isArray(hover.Contents) {
		var parts []json.RawMessage
		if err := json.Unmarshal(hover.Contents, &parts); err != nil {
			return nil, nil, err
		}
		return parts, hover.Range, nil
	}
	return []json.RawMessage{hover.Contents}, hover.Range, nil
}

// decodeSymbols accepts SymbolInformation[] and DocumentSymbol[]. The
// hierarchical form is flattened with uri as every symbol's document.
func decodeSymbols(raw json.RawMessage, uri string) ([]protocol.SymbolInformation, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	var out []protocol.SymbolInformation
	for _, item := range items {
		var probe struct {
			Location *protocol.Location `json:"location"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, err
		}
		if probe.Location != nil {
			var si protocol.SymbolInformation
			if err := json.Unmarshal(item, &si); err != nil {
				return nil, err
			}
			out = append(out, si)
			continue
		}
		var ds protocol.DocumentSymbol
		if err := json.Unmarshal(item, &ds); err != nil {
			return nil, err
		}
		out = flattenSymbol(out, ds, "", uri)
	}
	return out, nil
}

func flattenSymbol(out []protocol.SymbolInformation, ds protocol.DocumentSymbol, container, uri string) []protocol.SymbolInformation {
	out = append(out, protocol.SymbolInformation{
		Name:          ds.Name,
		Kind:          ds.Kind,
		Deprecated:    ds.Deprecated,
		Location:      protocol.Location{URI: uri, Range: ds.SelectionRange},
		ContainerName: container,
	})
	for _, child := range ds.Children {
		out = flattenSymbol(out, child, ds.Name, uri)
	}
	return out
}

// editsByDocument lists a workspace edit's text edits per document URI,
// documentChanges first, then changes in URI order.
func editsByDocument(edit protocol.WorkspaceEdit) []protocol.TextDocumentEdit {
	out := append([]protocol.TextDocumentEdit(nil), edit.DocumentChanges...)
	for _, uri := range slices.Sorted(maps.Keys(edit.Changes)) {
		out = append(out, protocol.TextDocumentEdit{
			TextDocument: protocol.VersionedTextDocumentIdentifier{URI: uri},
			Edits:        edit.Changes[uri],
		})
	}
	return out
}
