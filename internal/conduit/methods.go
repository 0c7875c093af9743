package conduit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dshills/revbridge/internal/fields"
	"github.com/dshills/revbridge/internal/materialize"
	"github.com/dshills/revbridge/internal/users"
)

type parseResult struct {
	Fields json.RawMessage `json:"fields"`
	Errors []string        `json:"errors"`
}

// ParseCommitMessage submits corpus to differential.parsecommitmessage.
// A result whose field container is not an object yields
// *fields.UnrecognizedResponseError.
func (c *Client) ParseCommitMessage(ctx context.Context, corpus string) (fields.ParseOutcome, error) {
	var res parseResult
	params := map[string]any{"corpus": corpus, "partial": false}
	if err := c.Call(ctx, "differential.parsecommitmessage", params, &res); err != nil {
		return fields.ParseOutcome{}, err
	}

	raw := bytes.TrimSpace(res.Fields)
	if len(raw) == 0 || raw[0] != '{' {
		return fields.ParseOutcome{}, &fields.UnrecognizedResponseError{Raw: string(raw)}
	}
	var fs fields.FieldSet
	if err := json.Unmarshal(raw, &fs); err != nil {
		return fields.ParseOutcome{}, &fields.UnrecognizedResponseError{Raw: string(raw)}
	}
	return fields.ParseOutcome{
		Fields: fs.Total(),
		Errors: fields.ParseErrors(res.Errors),
	}, nil
}

type userRecord struct {
	PHID     string `json:"phid"`
	UserName string `json:"userName"`
}

// UsersFromEmails looks up each address with user.query. The result has one
// entry per input, in input order.
func (c *Client) UsersFromEmails(ctx context.Context, emails []string) ([]users.Lookup, error) {
	out := make([]users.Lookup, 0, len(emails))
	for _, email := range emails {
		var recs []userRecord
		if err := c.Call(ctx, "user.query", map[string]any{"emails": []string{email}}, &recs); err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			out = append(out, users.Lookup{})
			continue
		}
		out = append(out, users.Lookup{
			Identity: users.Identity{PHID: recs[0].PHID, Username: recs[0].UserName},
			Found:    true,
		})
	}
	return out, nil
}

// UsernamesFromPHIDs resolves PHIDs to user names in input order. A PHID the
// service does not know is returned unchanged.
func (c *Client) UsernamesFromPHIDs(ctx context.Context, phids []string) ([]string, error) {
	if len(phids) == 0 {
		return []string{}, nil
	}
	var recs []userRecord
	if err := c.Call(ctx, "user.query", map[string]any{"phids": phids}, &recs); err != nil {
		return nil, err
	}
	byPHID := make(map[string]string, len(recs))
	for _, r := range recs {
		byPHID[r.PHID] = r.UserName
	}
	names := make([]string, len(phids))
	for i, p := range phids {
		if name, ok := byPHID[p]; ok {
			names[i] = name
		} else {
			names[i] = p
		}
	}
	return names, nil
}

// offset decodes a line number sent either as a JSON number or a string.
type offset int

func (o *offset) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*o = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid offset %s", b)
	}
	*o = offset(n)
	return nil
}

type diffHunk struct {
	OldOffset offset `json:"oldOffset"`
	NewOffset offset `json:"newOffset"`
	Corpus    string `json:"corpus"`
}

type diffChange struct {
	OldPath     *string    `json:"oldPath"`
	CurrentPath *string    `json:"currentPath"`
	Hunks       []diffHunk `json:"hunks"`
}

type diffResult struct {
	Changes []diffChange `json:"changes"`
}

// GetRevisionDiff fetches the latest diff of revision D<id>.
func (c *Client) GetRevisionDiff(ctx context.Context, id int) ([]materialize.FileChange, error) {
	return c.getDiff(ctx, map[string]any{"revision_id": id})
}

// GetDiff fetches a diff by its own id.
func (c *Client) GetDiff(ctx context.Context, id int) ([]materialize.FileChange, error) {
	return c.getDiff(ctx, map[string]any{"diff_id": id})
}

func (c *Client) getDiff(ctx context.Context, params map[string]any) ([]materialize.FileChange, error) {
	var res diffResult
	if err := c.Call(ctx, "differential.getdiff", params, &res); err != nil {
		return nil, err
	}
	changes := make([]materialize.FileChange, 0, len(res.Changes))
	for _, ch := range res.Changes {
		fc := materialize.FileChange{OldPath: deref(ch.OldPath), NewPath: deref(ch.CurrentPath)}
		for _, h := range ch.Hunks {
			fc.Hunks = append(fc.Hunks, materialize.Hunk{
				OldStart: int(h.OldOffset),
				NewStart: int(h.NewOffset),
				Lines:    materialize.SplitCorpus(h.Corpus),
			})
		}
		changes = append(changes, fc)
	}
	return changes, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
