package gateway

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	"lsgw/internal/errors"
	"lsgw/internal/metrics"
	"lsgw/internal/paths"
	"lsgw/internal/protocol"
	"lsgw/internal/slogutil"
)

// diffContext is the number of unchanged lines around a change in
// editFile diffs.
const diffContext = 3

// workspaceFile resolves a caller URI to a file under the default
// projects root. Paths that leave the root, through ".." or a symlink,
// are rejected.
func (s *Service) workspaceFile(uri string) (wsPath, fsPath string, err error) {
	wsPath = s.documentPath(uri)
	if paths.IsFileURI(wsPath) {
		return "", "", errors.New(errors.InvalidParams, wsPath+" is outside the projects root", nil)
	}
	root := s.paths.Root("")
	if root == "" {
		root = "/"
	}
	fsPath = filepath.Clean(s.paths.ToFsPath("", wsPath))
	if !paths.IsWithinRoot(fsPath, root) {
		return "", "", errors.New(errors.InvalidParams, wsPath+" is outside the projects root", nil).
			WithDetails(map[string]interface{}{"path": wsPath})
	}
	return wsPath, fsPath, nil
}

// Snippets returns the lines around each requested range of a workspace
// file.
func (s *Service) Snippets(_ context.Context, p protocol.SnippetParams) ([]protocol.SnippetResult, error) {
	if err := requireURI(p.URI); err != nil {
		return nil, err
	}
	if p.LinesAround < 0 {
		return nil, errors.New(errors.InvalidParams, "linesAround must not be negative", nil)
	}
	wsPath, fsPath, err := s.workspaceFile(p.URI)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fsPath)
	if err != nil {
		return nil, errors.New(errors.NotFound, "cannot read "+wsPath, err)
	}
	lines := splitLines(string(data))

	out := make([]protocol.SnippetResult, 0, len(p.Ranges))
	for _, r := range p.Ranges {
		if r.Start.Line < 0 || r.Start.Line >= len(lines) || r.End.Line < r.Start.Line {
			return nil, errors.New(errors.InvalidParams, fmt.Sprintf("range %d-%d is outside %s", r.Start.Line, r.End.Line, wsPath), nil)
		}
		first := max(0, r.Start.Line-p.LinesAround)
		last := min(len(lines)-1, r.End.Line+p.LinesAround)
		out = append(out, protocol.SnippetResult{
			Range:     r,
			Snippet:   strings.Join(lines[first:last+1], "\n"),
			StartLine: first,
			RangeInSnippet: protocol.Range{
				Start: protocol.Position{Line: r.Start.Line - first, Character: r.Start.Character},
				End:   protocol.Position{Line: r.End.Line - first, Character: r.End.Character},
			},
		})
	}
	return out, nil
}

// EditFile applies plain text edits to a workspace file and returns the
// new length in bytes with a unified diff of the change. Edits to the same
// file are serialized.
func (s *Service) EditFile(_ context.Context, p protocol.EditFileParams) (*protocol.EditFileResult, error) {
	if err := requireURI(p.URI); err != nil {
		return nil, err
	}
	wsPath, fsPath, err := s.workspaceFile(p.URI)
	if err != nil {
		return nil, err
	}

	var result *protocol.EditFileResult
	err = s.fileLocks.With(fsPath, func() error {
		info, err := os.Stat(fsPath)
		if err != nil {
			return errors.New(errors.NotFound, "cannot read "+wsPath, err)
		}
		data, err := os.ReadFile(fsPath)
		if err != nil {
			return errors.New(errors.NotFound, "cannot read "+wsPath, err)
		}
		original := string(data)

		updated, err := applyEdits(original, p.Edits)
		if err != nil {
			return errors.New(errors.InvalidParams, "cannot apply edits to "+wsPath, err)
		}
		if updated != original {
			if err := os.WriteFile(fsPath, []byte(updated), info.Mode().Perm()); err != nil {
				return errors.New(errors.InternalError, "cannot write "+wsPath, err)
			}
		}

		d, err := unifiedDiff(wsPath, original, updated)
		if err != nil {
			return errors.New(errors.InternalError, "cannot diff "+wsPath, err)
		}
		result = &protocol.EditFileResult{URI: wsPath, Length: len(updated), Diff: d}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Edited workspace file", "path", wsPath, "edits", len(p.Edits))
	return result, nil
}

// DidChangeWatchedFile routes one file event to the ready backends whose
// watch globs match the path and returns how many were notified.
func (s *Service) DidChangeWatchedFile(_ context.Context, ev protocol.GatewayFileEvent) int {
	wsPath := s.documentPath(ev.Path)
	notified := 0
	for _, h := range s.resolver.ByWatch(wsPath) {
		params := protocol.DidChangeWatchedFilesParams{
			Changes: []protocol.FileEvent{{URI: s.paths.ToFsURI(h.ID, wsPath), Type: ev.Type}},
		}
		if err := h.Instance.Notify("workspace/didChangeWatchedFiles", params); err != nil {
			slogutil.ForBackend(s.logger, h.ID).Warn("Failed to forward file event", "path", wsPath, "error", err.Error())
			continue
		}
		notified++
	}
	if notified > 0 {
		metrics.RecordFileEvent(fileChangeName(ev.Type))
	}
	return notified
}

func fileChangeName(t protocol.FileChangeType) string {
	switch t {
	case protocol.FileCreated:
		return "created"
	case protocol.FileChanged:
		return "changed"
	case protocol.FileDeleted:
		return "deleted"
	}
	return "unknown"
}

// extendRename rewrites a backend's rename answer to workspace paths and
// attaches the text of each edited line.
func (s *Service) extendRename(backendID string, edit protocol.WorkspaceEdit) protocol.ExtendedWorkspaceEdit {
	out := protocol.ExtendedWorkspaceEdit{DocumentChanges: []protocol.ExtendedTextDocumentEdit{}}
	for _, doc := range editsByDocument(edit) {
		if len(doc.Edits) == 0 {
			continue
		}
		lines := s.backendFileLines(backendID, doc.TextDocument.URI)
		ext := protocol.ExtendedTextDocumentEdit{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				URI:     s.paths.ToWsPath(backendID, doc.TextDocument.URI),
				Version: doc.TextDocument.Version,
			},
			Edits: make([]protocol.ExtendedTextEdit, 0, len(doc.Edits)),
		}
		for _, e := range doc.Edits {
			xe := protocol.ExtendedTextEdit{
				Range:       e.Range,
				NewText:     e.NewText,
				InLineStart: e.Range.Start.Character,
				InLineEnd:   e.Range.End.Character,
			}
			if l := e.Range.Start.Line; l >= 0 && l < len(lines) {
				xe.LineText = lines[l]
			}
			ext.Edits = append(ext.Edits, xe)
		}
		out.DocumentChanges = append(out.DocumentChanges, ext)
	}
	return out
}

// backendFileLines reads a file named by a backend URI. Some servers send
// paths relative to the projects root; those are resolved against it.
func (s *Service) backendFileLines(backendID, uri string) []string {
	fsPath := paths.FsPathFromURI(uri)
	root := s.paths.Root(backendID)
	if root != "" && !strings.HasPrefix(fsPath, root+"/") {
		fsPath = s.paths.ToFsPath(backendID, fsPath)
	}
	data, err := os.ReadFile(fsPath)
	if err != nil {
		slogutil.ForBackend(s.logger, backendID).Debug("Cannot read renamed file", "path", fsPath, "error", err.Error())
		return nil
	}
	return splitLines(string(data))
}

func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

type span struct {
	start, end int
	text       string
	index      int
}

// applyEdits substitutes edits into content. Positions count UTF-16 code
// units; characters past the end of a line clamp to it. Overlapping edits
// are rejected.
func applyEdits(content string, edits []protocol.TextEdit) (string, error) {
	if len(edits) == 0 {
		return content, nil
	}
	starts := lineStarts(content)
	spans := make([]span, 0, len(edits))
	for i, e := range edits {
		start, err := offsetOf(content, starts, e.Range.Start)
		if err != nil {
			return "", err
		}
		end, err := offsetOf(content, starts, e.Range.End)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", fmt.Errorf("edit %d ends before it starts", i)
		}
		spans = append(spans, span{start: start, end: end, text: e.NewText, index: i})
	}

	// last edit first so earlier offsets stay valid. At one offset the
	// replacement is applied before the inserts, so inserted text lands in
	// front of it whatever the request order; inserts keep their order.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start > spans[j].start
		}
		if iEmpty, jEmpty := spans[i].start == spans[i].end, spans[j].start == spans[j].end; iEmpty != jEmpty {
			return jEmpty
		}
		return spans[i].index > spans[j].index
	})
	for i := 1; i < len(spans); i++ {
		if spans[i].end > spans[i-1].start {
			return "", fmt.Errorf("edits %d and %d overlap", spans[i].index, spans[i-1].index)
		}
	}

	for _, sp := range spans {
		content = content[:sp.start] + sp.text + content[sp.end:]
	}
	return content, nil
}

func lineStarts(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func offsetOf(content string, starts []int, pos protocol.Position) (int, error) {
	if pos.Line < 0 || pos.Line >= len(starts) || pos.Character < 0 {
		return 0, fmt.Errorf("position %d:%d is outside the document", pos.Line, pos.Character)
	}
	lineStart := starts[pos.Line]
	lineEnd := len(content)
	if pos.Line+1 < len(starts) {
		lineEnd = starts[pos.Line+1] - 1
	}
	line := strings.TrimSuffix(content[lineStart:lineEnd], "\r")

	units := 0
	for i, r := range line {
		if units >= pos.Character {
			return lineStart + i, nil
		}
		units += len(utf16.Encode([]rune{r}))
	}
	return lineStart + len(line), nil
}

// unifiedDiff renders the change from a to b as a unified diff, one hunk
// per group of nearby changes.
func unifiedDiff(name, a, b string) (string, error) {
	if a == b {
		return "", nil
	}
	al, bl := diffLines(a), diffLines(b)
	m := difflib.NewMatcherWithJunk(al, bl, false, nil)

	var hunks []*diff.Hunk
	for _, group := range m.GetGroupedOpCodes(diffContext) {
		first, last := group[0], group[len(group)-1]
		var body bytes.Buffer
		write := func(mark byte, lines []string) {
			for _, l := range lines {
				body.WriteByte(mark)
				body.WriteString(l)
				if !strings.HasSuffix(l, "\n") {
					body.WriteString("\n\\ No newline at end of file\n")
				}
			}
		}
		for _, op := range group {
			switch op.Tag {
			case 'e':
				write(' ', al[op.I1:op.I2])
			case 'd':
				write('-', al[op.I1:op.I2])
			case 'i':
				write('+', bl[op.J1:op.J2])
			case 'r':
				write('-', al[op.I1:op.I2])
				write('+', bl[op.J1:op.J2])
			}
		}

		hunk := &diff.Hunk{
			OrigStartLine: int32(first.I1 + 1),
			OrigLines:     int32(last.I2 - first.I1),
			NewStartLine:  int32(first.J1 + 1),
			NewLines:      int32(last.J2 - first.J1),
			Body:          body.Bytes(),
		}
		if hunk.OrigLines == 0 {
			hunk.OrigStartLine--
		}
		if hunk.NewLines == 0 {
			hunk.NewStartLine--
		}
		hunks = append(hunks, hunk)
	}

	out, err := diff.PrintFileDiff(&diff.FileDiff{
		OrigName: "a" + name,
		NewName:  "b" + name,
		Hunks:    hunks,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func diffLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
