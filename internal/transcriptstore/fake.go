package transcriptstore

// Fake is a hand-written in-memory TranscriptStore for tests — the
// collaborator interface is small enough that generated mocks would be
// pure overhead.
type Fake struct {
	Projects []ProjectInfo
	Sessions []SessionMeta
	Windows  map[string]WindowResult
	Parsed   map[string]*ParseResult
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{Windows: make(map[string]WindowResult), Parsed: make(map[string]*ParseResult)}
}

func (f *Fake) ListProjects(limit *int) ([]ProjectInfo, error) {
	if limit == nil || *limit >= len(f.Projects) {
		return f.Projects, nil
	}
	return f.Projects[:*limit], nil
}

func (f *Fake) ListSessions(projectPath *string) ([]SessionMeta, error) {
	if projectPath == nil {
		return f.Sessions, nil
	}
	var out []SessionMeta
	for _, s := range f.Sessions {
		if s.ProjectPath == *projectPath {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *Fake) ReadWindowRaw(sessionPath string, limit, offset int, order Order) (WindowResult, error) {
	return f.Windows[sessionPath], nil
}

func (f *Fake) ParseSession(meta SessionMeta) (*ParseResult, error) {
	return f.Parsed[meta.SessionID], nil
}

var _ TranscriptStore = (*Fake)(nil)
