package paths

import "testing"

func TestTransformer_ToFsURI(t *testing.T) {
	tr := NewTransformer("/projects")
	tr.SetRoot("remote", "/mnt/remote/")

	tests := []struct {
		backend string
		wsPath  string
		want    string
	}{
		{"ts", "/a/b.txt", "file:///projects/a/b.txt"},
		{"ts", "a/b.txt", "file:///projects/a/b.txt"},
		{"remote", "/a/b.txt", "file:///mnt/remote/a/b.txt"},
	}

	for _, tt := range tests {
		if got := tr.ToFsURI(tt.backend, tt.wsPath); got != tt.want {
			t.Errorf("ToFsURI(%s, %s) = %s, want %s", tt.backend, tt.wsPath, got, tt.want)
		}
	}
}

func TestTransformer_ToWsPath(t *testing.T) {
	tr := NewTransformer("/projects")

	tests := []struct {
		uri  string
		want string
	}{
		{"file:///projects/a/b.txt", "/a/b.txt"},
		{"file:///projects", "/"},
		{"file:///projects2/a.txt", "file:///projects2/a.txt"},
		{"file:///usr/lib/go/src/fmt/print.go", "file:///usr/lib/go/src/fmt/print.go"},
		{"jdt://contents/rt.jar", "jdt://contents/rt.jar"},
	}

	for _, tt := range tests {
		if got := tr.ToWsPath("ts", tt.uri); got != tt.want {
			t.Errorf("ToWsPath(%s) = %s, want %s", tt.uri, got, tt.want)
		}
	}
}

func TestTransformer_RoundTrip(t *testing.T) {
	for _, root := range []string{"/projects", "/", "", "/deep/nested/root"} {
		tr := NewTransformer(root)
		for _, p := range []string{"/a.txt", "/a/b/c.go", "/with space/x.md", "/"} {
			if got := tr.ToWsPath("any", tr.ToFsURI("any", p)); got != p {
				t.Errorf("root %q: round trip of %q = %q", root, p, got)
			}
		}
	}
}

func TestTransformer_SetRootClears(t *testing.T) {
	tr := NewTransformer("/projects")
	tr.SetRoot("x", "/other")
	if tr.Root("x") != "/other" {
		t.Fatalf("Root(x) = %s, want /other", tr.Root("x"))
	}
	tr.SetRoot("x", "")
	if tr.Root("x") != "/projects" {
		t.Errorf("Root(x) after clear = %s, want /projects", tr.Root("x"))
	}
}

func TestTransformer_WsPathFromAny(t *testing.T) {
	tr := NewTransformer("/projects")
	if got := tr.WsPathFromAny("x", "/a.txt"); got != "/a.txt" {
		t.Errorf("WsPathFromAny(ws) = %s", got)
	}
	if got := tr.WsPathFromAny("x", "file:///projects/a.txt"); got != "/a.txt" {
		t.Errorf("WsPathFromAny(uri) = %s", got)
	}
}

func TestTransformer_EncodedURIs(t *testing.T) {
	tr := NewTransformer("/projects")

	if got, want := tr.ToFsURI("b", "/My Project/a b.go"), "file:///projects/My%20Project/a%20b.go"; got != want {
		t.Errorf("ToFsURI() = %s, want %s", got, want)
	}
	if got, want := tr.ToFsURI("b", "/café/ü.go"), "file:///projects/caf%C3%A9/%C3%BC.go"; got != want {
		t.Errorf("ToFsURI() = %s, want %s", got, want)
	}

	tests := []struct {
		uri  string
		want string
	}{
		{"file:///projects/My%20Project/a%20b.go", "/My Project/a b.go"},
		{"file:///projects/caf%C3%A9/%C3%BC.go", "/café/ü.go"},
		{"file:///projects/plain.go", "/plain.go"},
		{"file:///projects/bad%zzescape.go", "/bad%zzescape.go"},
	}
	for _, tt := range tests {
		if got := tr.ToWsPath("b", tt.uri); got != tt.want {
			t.Errorf("ToWsPath(%s) = %s, want %s", tt.uri, got, tt.want)
		}
	}
}

func TestTransformer_EncodedRoot(t *testing.T) {
	tr := NewTransformer("/home/me/My Projects")
	uri := tr.ToFsURI("x", "/src/main.go")
	if uri != "file:///home/me/My%20Projects/src/main.go" {
		t.Fatalf("ToFsURI() = %s", uri)
	}
	if got := tr.ToWsPath("x", uri); got != "/src/main.go" {
		t.Errorf("ToWsPath(%s) = %s, want /src/main.go", uri, got)
	}
}

func TestFileURI(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/projects", "file:///projects"},
		{"", "file:///"},
		{"/a#b/c?d", "file:///a%23b/c%3Fd"},
	}
	for _, tt := range tests {
		if got := FileURI(tt.path); got != tt.want {
			t.Errorf("FileURI(%q) = %s, want %s", tt.path, got, tt.want)
		}
		if got := FsPathFromURI(FileURI(tt.path)); tt.path != "" && got != tt.path {
			t.Errorf("FsPathFromURI(FileURI(%q)) = %s", tt.path, got)
		}
	}
}
