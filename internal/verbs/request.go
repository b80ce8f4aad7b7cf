package verbs

import (
	"context"
	"encoding/json"
)

// Request is the envelope every verb arrives in. Fields a verb does not use
// are ignored.
type Request struct {
	Verb string `json:"verb"`
	Key  string `json:"key,omitempty"`
	Xid  string `json:"xid,omitempty"`
	Rep  string `json:"rep,omitempty"`
	Memo string `json:"memo,omitempty"`

	Src      string   `json:"src,omitempty"`
	Dst      string   `json:"dst,omitempty"`
	Amount   int64    `json:"amount,omitempty"`
	Expires  string   `json:"expires,omitempty"`
	Enc      string   `json:"enc,omitempty"`
	Account  string   `json:"account,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
	Encs     bool     `json:"encs,omitempty"`
	Currs    []string `json:"currs,omitempty"`
	Curr     string   `json:"curr,omitempty"`
	Owner    string   `json:"owner,omitempty"`
	Auth     string   `json:"auth,omitempty"`
	Cancel   string   `json:"cancel,omitempty"`
}

// Reply answers a request, either with success fields or with a failure code
// and description.
type Reply struct {
	To     string
	Verb   string
	Xid    string
	Fail   string
	Desc   string
	Fields map[string]any
}

// Failed reports whether the reply carries a failure code.
func (r Reply) Failed() bool { return r.Fail != "" }

// MarshalJSON flattens the success fields alongside the envelope.
func (r Reply) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+5)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["verb"] = r.Verb
	if r.To != "" {
		out["to"] = r.To
	}
	if r.Xid != "" {
		out["xid"] = r.Xid
	}
	if r.Fail != "" {
		out["fail"] = r.Fail
		out["desc"] = r.Desc
	}
	return json.Marshal(out)
}

// Replier delivers replies to the requester.
type Replier interface {
	Send(ctx context.Context, reply Reply)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, reply Reply)

func (f ReplierFunc) Send(ctx context.Context, reply Reply) { f(ctx, reply) }
