// Package config loads ledgerflow network definitions written in CUE.
//
// A network names its parties, the notary among them, and the protocol
// settings every node shares:
//
//	network: {
//		notary: "Notary"
//		parties: {
//			Notary: seed: "notary"
//			Alice:  seed: "alice"
//			Bob: {seed: "bob", max_quantity: 1000}
//		}
//		signature_timeout: "5s"
//	}
//
// Values are unified with an embedded schema before decoding, so defaults
// and type constraints apply to every file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ledgerflow/internal/ledger"
)

//go:embed schema.cue
var schemaSource string

// Error codes.
const (
	ErrCodeNotFound   = "E005" // Path not found
	ErrCodeNoFiles    = "E003" // No CUE files found
	ErrCodeLoadFailed = "E004" // CUE load failed
	ErrCodeBuild      = "E006" // CUE build or unification failed
	ErrCodeInvalid    = "E201" // Network definition is inconsistent
)

// Error is a configuration error, with its CUE position when known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalid reports whether err is a configuration error with code
// ErrCodeInvalid.
func IsInvalid(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodeInvalid
}

// Party is one network member.
type Party struct {
	Name ledger.PartyID
	Seed string

	// MaxQuantity is 0 when the party accepts any quantity.
	MaxQuantity int64
}

// Network is a validated network definition.
type Network struct {
	Notary           ledger.PartyID
	Parties          []Party // sorted by name, notary included
	SignatureTimeout time.Duration
	PageSize         int
	InboundRate      float64
	InboundBurst     int
}

// Party returns the named member.
func (n *Network) Party(name ledger.PartyID) (Party, bool) {
	for _, p := range n.Parties {
		if p.Name == name {
			return p, true
		}
	}
	return Party{}, false
}

// Nodes returns every member except the notary, sorted by name.
func (n *Network) Nodes() []Party {
	out := make([]Party, 0, len(n.Parties))
	for _, p := range n.Parties {
		if p.Name != n.Notary {
			out = append(out, p)
		}
	}
	return out
}

type rawParty struct {
	Seed        string `json:"seed"`
	MaxQuantity int64  `json:"max_quantity"`
}

type rawNetwork struct {
	Notary           string              `json:"notary"`
	Parties          map[string]rawParty `json:"parties"`
	SignatureTimeout string              `json:"signature_timeout"`
	PageSize         int                 `json:"page_size"`
	InboundRate      float64             `json:"inbound_rate"`
	InboundBurst     int                 `json:"inbound_burst"`
}

// Load reads the CUE package in dir and decodes its network field.
func Load(dir string) (*Network, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(files) == 0 {
		return nil, &Error{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	return decode(ctx, v)
}

// CompileString decodes the network field of a CUE source string.
func CompileString(src string) (*Network, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("network.cue"))
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	return decode(ctx, v)
}

func decode(ctx *cue.Context, v cue.Value) (*Network, error) {
	nv := v.LookupPath(cue.ParsePath("network"))
	if !nv.Exists() {
		return nil, &Error{Code: ErrCodeInvalid, Message: "network is required", Pos: v.Pos()}
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	nv = schema.LookupPath(cue.ParsePath("#Network")).Unify(nv)
	if err := nv.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}

	var raw rawNetwork
	if err := nv.Decode(&raw); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	return build(raw, nv.Pos())
}

func build(raw rawNetwork, pos token.Pos) (*Network, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf(format, args...), Pos: pos}
	}

	timeout, err := time.ParseDuration(raw.SignatureTimeout)
	if err != nil {
		return nil, invalid("signature_timeout: %v", err)
	}
	if timeout <= 0 {
		return nil, invalid("signature_timeout must be positive, got %s", timeout)
	}

	n := &Network{
		Notary:           ledger.PartyID(raw.Notary),
		SignatureTimeout: timeout,
		PageSize:         raw.PageSize,
		InboundRate:      raw.InboundRate,
		InboundBurst:     raw.InboundBurst,
	}
	seeds := make(map[string]string, len(raw.Parties))
	for name, p := range raw.Parties {
		if other, dup := seeds[p.Seed]; dup {
			return nil, invalid("parties %s and %s share a seed", min(name, other), max(name, other))
		}
		seeds[p.Seed] = name
		n.Parties = append(n.Parties, Party{Name: ledger.PartyID(name), Seed: p.Seed, MaxQuantity: p.MaxQuantity})
	}
	sort.Slice(n.Parties, func(i, j int) bool { return n.Parties[i].Name < n.Parties[j].Name })

	if _, ok := n.Party(n.Notary); !ok {
		return nil, invalid("notary %s is not a party", n.Notary)
	}
	if len(n.Nodes()) == 0 {
		return nil, invalid("network has no parties besides the notary")
	}
	return n, nil
}

func cueError(code string, err error) *Error {
	ce := &Error{Code: code, Message: cueerrors.Details(err, nil)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		ce.Pos = errs[0].Position()
	}
	return ce
}
