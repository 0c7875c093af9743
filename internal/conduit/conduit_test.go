package conduit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revbridge/internal/cache"
	"github.com/dshills/revbridge/internal/fields"
	"github.com/dshills/revbridge/internal/materialize"
)

const testToken = "api-abcdefghijklmnopqrstuvwxyz01"

// conduitServer answers each method with the given result. Requests for
// unknown methods fail the test.
func conduitServer(t *testing.T, results map[string]string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		var params map[string]any
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("params")), &params))
		rec.add(params)

		result, ok := results[method]
		if !ok {
			t.Errorf("unexpected method %q", method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"result":` + result + `,"error_code":null,"error_info":null}`))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

type recorder struct {
	mu     sync.Mutex
	params []map[string]any
}

func (r *recorder) add(p map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = append(r.params, p)
}

func (r *recorder) calls() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(url, testToken, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingURI(t *testing.T) {
	_, err := NewClient("  ", testToken)
	assert.ErrorIs(t, err, ErrMissingURI)
}

func TestNewClient_APIPath(t *testing.T) {
	for _, uri := range []string{"https://phab.example.com", "https://phab.example.com/", "https://phab.example.com/api/"} {
		c, err := NewClient(uri, testToken)
		require.NoError(t, err)
		assert.Equal(t, "https://phab.example.com/api", c.apiURL, uri)
	}
}

func TestCall_SendsTokenAndForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/conduit.ping", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "json", r.PostForm.Get("output"))

		var params struct {
			Conduit struct {
				Token string `json:"token"`
			} `json:"__conduit__"`
			Value string `json:"value"`
		}
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("params")), &params))
		assert.Equal(t, testToken, params.Conduit.Token)
		assert.Equal(t, "x", params.Value)
		w.Write([]byte(`{"result":"pong","error_code":null,"error_info":null}`))
	}))
	defer srv.Close()

	var out string
	require.NoError(t, newTestClient(t, srv.URL).Call(context.Background(), "conduit.ping", map[string]any{"value": "x"}, &out))
	assert.Equal(t, "pong", out)
}

func TestCall_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null,"error_code":"ERR-INVALID-AUTH","error_info":"bad token ` + testToken + `"}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Call(context.Background(), "user.whoami", nil, nil)
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "ERR-INVALID-AUTH", ae.Code)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsTransient(err))
	assert.NotContains(t, err.Error(), testToken)
}

func TestCall_ServerErrorIsTransientAndRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream said " + testToken))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Call(context.Background(), "user.whoami", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "status 502")
	assert.NotContains(t, err.Error(), testToken)
}

func TestCall_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Call(context.Background(), "user.whoami", nil, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestCall_CachesReads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"result":{"fields":{"title":"T"},"errors":[]},"error_code":null,"error_info":null}`))
	}))
	defer srv.Close()

	ch, err := cache.New(true, t.TempDir(), 3600)
	require.NoError(t, err)
	c := newTestClient(t, srv.URL, WithCache(ch))

	for range 3 {
		out, err := c.ParseCommitMessage(context.Background(), "T\n\nTest Plan: x")
		require.NoError(t, err)
		assert.Equal(t, "T", out.Fields.Title)
	}
	assert.EqualValues(t, 1, hits.Load())

	_, err = c.ParseCommitMessage(context.Background(), "different")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestParseCommitMessage(t *testing.T) {
	srv, seen := conduitServer(t, map[string]string{
		"differential.parsecommitmessage": `{
			"fields": {"title": "Fix crash", "summary": "Details", "reviewerPHIDs": ["PHID-USER-1"]},
			"errors": [
				"Invalid or missing field 'Test Plan': You must provide a test plan.",
				"Error parsing field 'Reviewers': Commit message references nonexistent users: alice, bob."
			]
		}`,
	})

	out, err := newTestClient(t, srv.URL).ParseCommitMessage(context.Background(), "Fix crash\n\nDetails")
	require.NoError(t, err)

	assert.Equal(t, "Fix crash", out.Fields.Title)
	assert.Equal(t, []string{"PHID-USER-1"}, out.Fields.Reviewers)
	assert.NotNil(t, out.Fields.CCs)
	assert.Empty(t, out.Fields.CCs)
	assert.Equal(t, []fields.ParseError{
		fields.NoTestPlan{},
		fields.UnknownReviewer{Names: []string{"alice", "bob"}},
	}, out.Errors)
	require.Len(t, seen.calls(), 1)
	assert.Equal(t, "Fix crash\n\nDetails", seen.calls()[0]["corpus"])
}

func TestParseCommitMessage_FieldsNotAnObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"oops"`, `null`} {
		t.Run(raw, func(t *testing.T) {
			srv, _ := conduitServer(t, map[string]string{
				"differential.parsecommitmessage": `{"fields": ` + raw + `, "errors": []}`,
			})
			_, err := newTestClient(t, srv.URL).ParseCommitMessage(context.Background(), "x")

			var ue *fields.UnrecognizedResponseError
			require.ErrorAs(t, err, &ue)
			assert.ErrorIs(t, err, fields.ErrUnrecognizedResponse)
			assert.False(t, IsTransient(err))
		})
	}
}

func TestUsersFromEmails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		var params struct {
			Emails []string `json:"emails"`
		}
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("params")), &params))
		assert.Len(t, params.Emails, 1)
		result := `[]`
		if len(params.Emails) == 1 && params.Emails[0] == "alice@example.com" {
			result = `[{"phid":"PHID-USER-a","userName":"alice"}]`
		}
		w.Write([]byte(`{"result":` + result + `}`))
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).UsersFromEmails(context.Background(),
		[]string{"alice@example.com", "nobody@example.com"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Found)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "PHID-USER-a", got[0].PHID)
	assert.False(t, got[1].Found)
}

func TestUsernamesFromPHIDs(t *testing.T) {
	srv, _ := conduitServer(t, map[string]string{
		"user.query": `[{"phid":"PHID-USER-b","userName":"bob"},{"phid":"PHID-USER-a","userName":"alice"}]`,
	})

	got, err := newTestClient(t, srv.URL).UsernamesFromPHIDs(context.Background(),
		[]string{"PHID-USER-a", "PHID-USER-x", "PHID-USER-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "PHID-USER-x", "bob"}, got)
}

func TestUsernamesFromPHIDs_EmptyMakesNoCall(t *testing.T) {
	srv, seen := conduitServer(t, map[string]string{})
	got, err := newTestClient(t, srv.URL).UsernamesFromPHIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, seen.calls())
}

func TestGetRevisionDiff(t *testing.T) {
	srv, seen := conduitServer(t, map[string]string{
		"differential.getdiff": `{"id": 9, "changes": [
			{"oldPath": "a.txt", "currentPath": "a.txt",
			 "hunks": [{"oldOffset": "1", "newOffset": 1, "corpus": " keep\n-old\n+new\n"}]},
			{"oldPath": null, "currentPath": "b.txt",
			 "hunks": [{"oldOffset": "1", "newOffset": "1", "corpus": "+b"}]}
		]}`,
	})

	changes, err := newTestClient(t, srv.URL).GetRevisionDiff(context.Background(), 42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, seen.calls()[0]["revision_id"])

	require.Len(t, changes, 2)
	assert.Equal(t, materialize.FileChange{
		OldPath: "a.txt",
		NewPath: "a.txt",
		Hunks: []materialize.Hunk{{OldStart: 1, NewStart: 1, Lines: []materialize.PrefixedLine{
			{Prefix: ' ', Text: "keep\n"},
			{Prefix: '-', Text: "old\n"},
			{Prefix: '+', Text: "new\n"},
		}}},
	}, changes[0])
	assert.Empty(t, changes[1].OldPath)
	assert.Equal(t, "b.txt", changes[1].NewPath)
}

func TestGetDiff_ByID(t *testing.T) {
	srv, seen := conduitServer(t, map[string]string{"differential.getdiff": `{"changes": []}`})
	changes, err := newTestClient(t, srv.URL).GetDiff(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.EqualValues(t, 7, seen.calls()[0]["diff_id"])
}

func TestOffset_Invalid(t *testing.T) {
	var o offset
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &o))
}

func TestRetry(t *testing.T) {
	prev := baseBackoff
	baseBackoff = time.Millisecond
	t.Cleanup(func() { baseBackoff = prev })

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, func() error {
			calls++
			if calls < 3 {
				return &transientError{status: 503, err: errors.New("unavailable")}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 2, func() error {
			calls++
			return &transientError{status: 429, err: errors.New("slow down")}
		})
		assert.True(t, IsTransient(err))
		assert.Equal(t, 3, calls)
	})

	t.Run("protocol errors are not retried", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 5, func() error {
			calls++
			return &fields.UnrecognizedResponseError{Raw: "[]"}
		})
		assert.ErrorIs(t, err, fields.ErrUnrecognizedResponse)
		assert.Equal(t, 1, calls)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, 3, func() error {
			return &transientError{err: errors.New("down")}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
