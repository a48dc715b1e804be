package gateway

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsgw/internal/errors"
	"lsgw/internal/paths"
	"lsgw/internal/protocol"
)

func TestApplyEdits(t *testing.T) {
	tests := []struct {
		name    string
		content string
		edits   []protocol.TextEdit
		want    string
		wantErr bool
	}{
		{
			name:    "no edits",
			content: "unchanged\n",
			want:    "unchanged\n",
		},
		{
			name:    "edits on several lines",
			content: "hello world\nfoo bar\n",
			edits: []protocol.TextEdit{
				{Range: rng(0, 0, 0, 5), NewText: "HELLO"},
				{Range: rng(1, 4, 1, 7), NewText: "BAZ"},
			},
			want: "HELLO world\nfoo BAZ\n",
		},
		{
			name:    "inserts at one position keep their order",
			content: "ab",
			edits: []protocol.TextEdit{
				{Range: rng(0, 1, 0, 1), NewText: "x"},
				{Range: rng(0, 1, 0, 1), NewText: "y"},
			},
			want: "axyb",
		},
		{
			name:    "insert then replacement at the same start",
			content: "abcdef",
			edits: []protocol.TextEdit{
				{Range: rng(0, 2, 0, 2), NewText: "+"},
				{Range: rng(0, 2, 0, 4), NewText: "XY"},
			},
			want: "ab+XYef",
		},
		{
			name:    "replacement then insert at the same start",
			content: "abcdef",
			edits: []protocol.TextEdit{
				{Range: rng(0, 2, 0, 4), NewText: "XY"},
				{Range: rng(0, 2, 0, 2), NewText: "+"},
			},
			want: "ab+XYef",
		},
		{
			name:    "insert at the end of a replacement",
			content: "abcdef",
			edits: []protocol.TextEdit{
				{Range: rng(0, 4, 0, 4), NewText: "+"},
				{Range: rng(0, 2, 0, 4), NewText: "XY"},
			},
			want: "abXY+ef",
		},
		{
			name:    "insert inside a replacement",
			content: "abcdef",
			edits: []protocol.TextEdit{
				{Range: rng(0, 2, 0, 5), NewText: "XY"},
				{Range: rng(0, 3, 0, 3), NewText: "+"},
			},
			wantErr: true,
		},
		{
			name:    "replacements at the same start",
			content: "abcdef",
			edits: []protocol.TextEdit{
				{Range: rng(0, 1, 0, 2), NewText: "X"},
				{Range: rng(0, 1, 0, 3), NewText: "Y"},
			},
			wantErr: true,
		},
		{
			name:    "delete across lines",
			content: "one\ntwo\nthree\n",
			edits:   []protocol.TextEdit{{Range: rng(0, 3, 2, 0), NewText: "\n"}},
			want:    "one\nthree\n",
		},
		{
			name:    "characters count utf-16 units",
			content: "a\U0001F600b",
			edits:   []protocol.TextEdit{{Range: rng(0, 3, 0, 4), NewText: "c"}},
			want:    "a\U0001F600c",
		},
		{
			name:    "character past line end clamps",
			content: "abc\ndef",
			edits:   []protocol.TextEdit{{Range: rng(0, 99, 0, 99), NewText: "!"}},
			want:    "abc!\ndef",
		},
		{
			name:    "crlf line endings",
			content: "ab\r\ncd\r\n",
			edits:   []protocol.TextEdit{{Range: rng(0, 2, 0, 2), NewText: "X"}},
			want:    "abX\r\ncd\r\n",
		},
		{
			name:    "overlapping edits",
			content: "abcdef",
			edits: []protocol.TextEdit{
				{Range: rng(0, 0, 0, 3), NewText: "1"},
				{Range: rng(0, 2, 0, 4), NewText: "2"},
			},
			wantErr: true,
		},
		{
			name:    "line outside document",
			content: "abc",
			edits:   []protocol.TextEdit{{Range: rng(5, 0, 5, 0), NewText: "x"}},
			wantErr: true,
		},
		{
			name:    "end before start",
			content: "abcdef",
			edits:   []protocol.TextEdit{{Range: rng(0, 4, 0, 1), NewText: "x"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyEdits(tt.content, tt.edits)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnifiedDiff(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		d, err := unifiedDiff("/proj/main.ts", "same\n", "same\n")
		require.NoError(t, err)
		assert.Empty(t, d)
	})

	t.Run("changed line with context", func(t *testing.T) {
		d, err := unifiedDiff("/proj/main.ts", "one\ntwo\nthree\n", "one\n2\nthree\n")
		require.NoError(t, err)
		assert.Equal(t, "--- a/proj/main.ts\n"+
			"+++ b/proj/main.ts\n"+
			"@@ -1,3 +1,3 @@\n"+
			" one\n"+
			"-two\n"+
			"+2\n"+
			" three\n", d)
	})

	t.Run("context is limited", func(t *testing.T) {
		a := "1\n2\n3\n4\n5\n6\n7\n8\n9\n"
		b := "1\n2\n3\n4\nfive\n6\n7\n8\n9\n"
		d, err := unifiedDiff("/f", a, b)
		require.NoError(t, err)
		assert.Equal(t, "--- a/f\n+++ b/f\n@@ -2,7 +2,7 @@\n 2\n 3\n 4\n-5\n+five\n 6\n 7\n 8\n", d)
	})

	t.Run("distant changes get separate hunks", func(t *testing.T) {
		var a, b strings.Builder
		for i := 1; i <= 20; i++ {
			line := strconv.Itoa(i)
			a.WriteString(line + "\n")
			switch i {
			case 2:
				line = "two"
			case 18:
				line = "eighteen"
			}
			b.WriteString(line + "\n")
		}
		d, err := unifiedDiff("/f", a.String(), b.String())
		require.NoError(t, err)
		assert.Equal(t, "--- a/f\n+++ b/f\n"+
			"@@ -1,5 +1,5 @@\n 1\n-2\n+two\n 3\n 4\n 5\n"+
			"@@ -15,6 +15,6 @@\n 15\n 16\n 17\n-18\n+eighteen\n 19\n 20\n", d)
	})

	t.Run("moved block keeps unchanged lines as context", func(t *testing.T) {
		d, err := unifiedDiff("/f", "a\nb\nc\nd\n", "a\nc\nd\nb\n")
		require.NoError(t, err)
		assert.Equal(t, "--- a/f\n+++ b/f\n@@ -1,4 +1,4 @@\n a\n-b\n c\n d\n+b\n", d)
	})

	t.Run("pure insertion", func(t *testing.T) {
		d, err := unifiedDiff("/f", "", "new\n")
		require.NoError(t, err)
		assert.Equal(t, "--- a/f\n+++ b/f\n@@ -0,0 +1,1 @@\n+new\n", d)
	})
}

func writeWorkspaceFile(t *testing.T, g *testGateway, wsPath, content string) string {
	t.Helper()
	fsPath := filepath.Join(g.root, filepath.FromSlash(wsPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(fsPath), 0755))
	require.NoError(t, os.WriteFile(fsPath, []byte(content), 0644))
	return fsPath
}

func TestSnippets(t *testing.T) {
	g := newTestGateway(t, Options{})
	writeWorkspaceFile(t, g, "/proj/notes.txt", "l0\nl1\nl2\nl3\nl4\n")
	ctx := context.Background()

	got, err := g.svc.Snippets(ctx, protocol.SnippetParams{
		URI:         "/proj/notes.txt",
		Ranges:      []protocol.Range{rng(2, 0, 2, 2), rng(0, 1, 0, 2)},
		LinesAround: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "l1\nl2\nl3", got[0].Snippet)
	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, rng(1, 0, 1, 2), got[0].RangeInSnippet)

	assert.Equal(t, "l0\nl1", got[1].Snippet)
	assert.Equal(t, 0, got[1].StartLine)
	assert.Equal(t, rng(0, 1, 0, 2), got[1].RangeInSnippet)

	tests := []struct {
		name   string
		params protocol.SnippetParams
		code   errors.ErrorCode
	}{
		{"negative context", protocol.SnippetParams{URI: "/proj/notes.txt", LinesAround: -1}, errors.InvalidParams},
		{"range past end", protocol.SnippetParams{URI: "/proj/notes.txt", Ranges: []protocol.Range{rng(40, 0, 41, 0)}}, errors.InvalidParams},
		{"missing file", protocol.SnippetParams{URI: "/proj/absent.txt"}, errors.NotFound},
		{"missing uri", protocol.SnippetParams{}, errors.InvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.svc.Snippets(ctx, tt.params)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestEditFile(t *testing.T) {
	g := newTestGateway(t, Options{})
	fsPath := writeWorkspaceFile(t, g, "/proj/main.ts", "one\ntwo\nthree\n")

	result, err := g.svc.EditFile(context.Background(), protocol.EditFileParams{
		URI:   "/proj/main.ts",
		Edits: []protocol.TextEdit{{Range: rng(1, 0, 1, 3), NewText: "2"}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(fsPath)
	require.NoError(t, err)
	assert.Equal(t, "one\n2\nthree\n", string(data))
	assert.Equal(t, "/proj/main.ts", result.URI)
	assert.Equal(t, len("one\n2\nthree\n"), result.Length)
	assert.Contains(t, result.Diff, "-two\n+2\n")
}

func TestEditFile_RejectsOverlapWithoutWriting(t *testing.T) {
	g := newTestGateway(t, Options{})
	fsPath := writeWorkspaceFile(t, g, "/proj/main.ts", "abcdef\n")

	_, err := g.svc.EditFile(context.Background(), protocol.EditFileParams{
		URI: "/proj/main.ts",
		Edits: []protocol.TextEdit{
			{Range: rng(0, 0, 0, 4), NewText: "x"},
			{Range: rng(0, 2, 0, 5), NewText: "y"},
		},
	})
	assert.True(t, errors.IsCode(err, errors.InvalidParams), "got %v", err)

	data, err := os.ReadFile(fsPath)
	require.NoError(t, err)
	assert.Equal(t, "abcdef\n", string(data))
}

func TestEditFile_MissingFile(t *testing.T) {
	g := newTestGateway(t, Options{})
	_, err := g.svc.EditFile(context.Background(), protocol.EditFileParams{URI: "/proj/ghost.ts"})
	assert.True(t, errors.IsCode(err, errors.NotFound))
}

func TestWorkspaceFiles_StayUnderRoot(t *testing.T) {
	g := newTestGateway(t, Options{})
	secret := filepath.Join(filepath.Dir(g.root), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret\n"), 0644))
	ctx := context.Background()

	uris := []string{"/../secret.txt", "/proj/../../secret.txt", paths.FileScheme + secret}
	if err := os.Symlink(filepath.Dir(g.root), filepath.Join(g.root, "up")); err == nil {
		uris = append(uris, "/up/secret.txt")
	}

	for _, uri := range uris {
		t.Run(uri, func(t *testing.T) {
			_, err := g.svc.Snippets(ctx, protocol.SnippetParams{URI: uri, Ranges: []protocol.Range{rng(0, 0, 0, 3)}})
			assert.True(t, errors.IsCode(err, errors.InvalidParams), "snippets: got %v", err)

			_, err = g.svc.EditFile(ctx, protocol.EditFileParams{
				URI:   uri,
				Edits: []protocol.TextEdit{{Range: rng(0, 0, 0, 3), NewText: "no"}},
			})
			assert.True(t, errors.IsCode(err, errors.InvalidParams), "editFile: got %v", err)

			data, err := os.ReadFile(secret)
			require.NoError(t, err)
			assert.Equal(t, "top secret\n", string(data))
		})
	}
}
