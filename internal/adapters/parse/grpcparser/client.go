// Package grpcparser implements the Parser boundary against an external
// document-parsing microservice over gRPC, grounded on the original
// DocumentParserService's LlamaParse v2 call (services/document_parser_service.py:
// upload raw bytes, then request markdown + extracted image assets for the
// resulting file_id), modeling "the Document parsing service" spec.md §1
// names as out of scope for this repo's own logic while still wiring a real
// client for it. Request/response payloads are carried as
// google.golang.org/protobuf's structpb.Struct — the parsing service owns
// its own .proto schema; this client adapts local Go types to/from the
// generic protobuf Struct wire format at the boundary rather than vendoring
// that service's generated stubs.
package grpcparser

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deepresearch/agentrunner/internal/adapters/parse"
	"github.com/deepresearch/agentrunner/internal/rerr"
)

const parseMethod = "/llamacloud.parse.v2.ParsingService/Parse"

// Client implements parse.Parser over gRPC.
type Client struct {
	conn   grpc.ClientConnInterface
	owned  *grpc.ClientConn
	apiKey string
}

// Options configures the client.
type Options struct {
	// Addr is the parsing service's gRPC address (host:port). Ignored if
	// Conn is set.
	Addr string
	// Conn lets callers share an existing connection.
	Conn grpc.ClientConnInterface
	// TLS enables transport credentials instead of insecure.
	TLS credentials.TransportCredentials
	// APIKey is sent as a "authorization" bearer-style metadata value.
	APIKey string
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	if opts.Conn != nil {
		return &Client{conn: opts.Conn, apiKey: opts.APIKey}, nil
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("grpcparser: addr or conn is required")
	}
	creds := opts.TLS
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(opts.Addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("grpcparser: dial %s: %w", opts.Addr, err)
	}
	return &Client{conn: conn, owned: conn, apiKey: opts.APIKey}, nil
}

// NewFromEnv reads LLAMA_CLOUD_ADDR and LLAMA_CLOUD_API_KEY per spec.md §6.
func NewFromEnv() (*Client, error) {
	addr := os.Getenv("LLAMA_CLOUD_ADDR")
	if addr == "" {
		return nil, fmt.Errorf("grpcparser: LLAMA_CLOUD_ADDR is not set")
	}
	return New(Options{Addr: addr, APIKey: os.Getenv("LLAMA_CLOUD_API_KEY")})
}

// Close releases a connection owned by New.
func (c *Client) Close() error {
	if c.owned != nil {
		return c.owned.Close()
	}
	return nil
}

// Parse implements parse.Parser: uploads data's bytes for parsing and
// returns the markdown content plus any extracted assets.
func (c *Client) Parse(ctx context.Context, req parse.Request) (parse.Result, error) {
	payload, err := structpb.NewStruct(map[string]any{
		"filename":  req.Filename,
		"mime_type": req.MimeType,
		"content":   req.Content,
		"tier":      "cost_effective",
		"version":   "latest",
	})
	if err != nil {
		return parse.Result{}, rerr.Wrap(rerr.Invariant, "grpcparser: encode request", err)
	}

	if c.apiKey != "" {
		ctx = withAPIKey(ctx, c.apiKey)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, parseMethod, payload, resp); err != nil {
		return parse.Result{}, rerr.Wrap(rerr.ParseFailed, fmt.Sprintf("grpcparser: parse %s", req.Filename), err)
	}

	return decodeResult(resp), nil
}

func withAPIKey(ctx context.Context, apiKey string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+apiKey)
}

func decodeResult(resp *structpb.Struct) parse.Result {
	fields := resp.GetFields()
	out := parse.Result{
		Markdown: fields["markdown"].GetStringValue(),
	}
	for _, v := range fields["assets"].GetListValue().GetValues() {
		a := v.GetStructValue().GetFields()
		out.Assets = append(out.Assets, parse.Asset{
			ID:          a["id"].GetStringValue(),
			Type:        a["type"].GetStringValue(),
			URL:         a["url"].GetStringValue(),
			Description: a["description"].GetStringValue(),
		})
	}
	return out
}
