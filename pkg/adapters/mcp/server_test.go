package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPreview struct {
	doc    string
	state  render.State
	runs   int
	runErr error
}

func (p *stubPreview) Document() string       { return p.doc }
func (p *stubPreview) Snapshot() render.State { return p.state }
func (p *stubPreview) RunNow() error {
	p.runs++
	return p.runErr
}
func (p *stubPreview) Subscribe() (<-chan string, func()) {
	ch := make(chan string)
	return ch, func() {}
}

type stubSessions map[domain.DocumentID]*stubPreview

func (s stubSessions) Get(doc domain.DocumentID) (ports.Preview, bool) {
	p, ok := s[doc]
	if !ok {
		return nil, false
	}
	return p, true
}

func (s stubSessions) List() []domain.DocumentID {
	var docs []domain.DocumentID
	for _, d := range []domain.DocumentID{"/work/a.py", "/work/b.py"} {
		if _, ok := s[d]; ok {
			docs = append(docs, d)
		}
	}
	return docs
}

func newClient(t *testing.T, sessions ports.PreviewSource) *client.Client {
	t.Helper()
	srv := NewServer(sessions, nil)
	c, err := client.NewInProcessClient(srv.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "arepl-test", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	return c
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestRenderState(t *testing.T) {
	a := &stubPreview{
		doc: `<div id="arepl">x = 1</div>`,
		state: render.State{
			Variables: domain.Variables{{Name: "x", Value: "1"}},
			Elapsed:   3 * time.Millisecond,
			Runs:      1,
		},
	}
	b := &stubPreview{doc: `<div id="arepl">b</div>`, state: render.State{Error: "NameError: name 'y' is not defined"}}
	c := newClient(t, stubSessions{"/work/a.py": a, "/work/b.py": b})

	res := callTool(t, c, "render_state", nil)
	require.False(t, res.IsError, text(t, res))

	var got StateResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, domain.DocumentID("/work/a.py"), got.Document)
	assert.Equal(t, "improvement", got.Timing)
	assert.Equal(t, a.doc, got.Rendered)
	assert.Equal(t, a.state.Variables, got.State.Variables)

	res = callTool(t, c, "render_state", map[string]any{"document": "/work/b.py"})
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "NameError: name 'y' is not defined", got.State.Error)
	assert.Equal(t, "none", got.Timing)
}

func TestRenderState_UnknownDocument(t *testing.T) {
	c := newClient(t, stubSessions{})

	res := callTool(t, c, "render_state", map[string]any{"document": "/work/missing.py"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "no document is being evaluated")
}

func TestRunNow(t *testing.T) {
	a := &stubPreview{}
	b := &stubPreview{runErr: domain.ErrNotRunning}
	c := newClient(t, stubSessions{"/work/a.py": a, "/work/b.py": b})

	res := callTool(t, c, "run_now", map[string]any{"document": "/work/a.py"})
	assert.False(t, res.IsError)
	assert.Equal(t, "evaluation of /work/a.py requested", text(t, res))
	assert.Equal(t, 1, a.runs)

	res = callTool(t, c, "run_now", map[string]any{"document": "/work/b.py"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "interpreter not running")
}

func TestListDocuments(t *testing.T) {
	c := newClient(t, stubSessions{"/work/a.py": &stubPreview{}, "/work/b.py": &stubPreview{}})

	res := callTool(t, c, "list_documents", nil)
	assert.Equal(t, "/work/a.py\n/work/b.py", text(t, res))
}

func TestPreviewResource(t *testing.T) {
	c := newClient(t, stubSessions{"/work/a.py": &stubPreview{doc: `<div id="arepl">a</div>`}})

	req := mcp.ReadResourceRequest{}
	req.Params.URI = PreviewURI
	res, err := c.ReadResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	contents, ok := mcp.AsTextResourceContents(res.Contents[0])
	require.True(t, ok)
	assert.Equal(t, `<div id="arepl">a</div>`, contents.Text)
	assert.Equal(t, "text/html", contents.MIMEType)
}

func TestPreviewResource_NoDocument(t *testing.T) {
	c := newClient(t, stubSessions{})

	req := mcp.ReadResourceRequest{}
	req.Params.URI = PreviewURI
	_, err := c.ReadResource(context.Background(), req)
	assert.Error(t, err)
}
