package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/aifusion/gateway/internal/registry"
)

// GRPCCaller forwards unary calls to a service's RPC endpoint without
// interpreting the message bytes. Request.Path must carry the full gRPC
// method name (/package.Service/Method); the body is sent as the request
// message and the reply bytes returned verbatim.
type GRPCCaller struct {
	descriptor *registry.Descriptor

	mutex sync.Mutex
	conn  *grpc.ClientConn
}

// NewGRPCCaller creates a caller for the descriptor's RPC endpoint. The
// connection is dialed lazily on the first call and reused afterwards.
func NewGRPCCaller(d *registry.Descriptor) *GRPCCaller {
	return &GRPCCaller{descriptor: d}
}

func (c *GRPCCaller) Do(ctx context.Context, req *Request) (*Response, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}

	var reply []byte
	err = conn.Invoke(ctx, req.Path, req.Body, &reply, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			// Transport-level: the dispatcher may retry.
			return nil, err
		}

		// Application-level status from the backend: pass it through.
		st, _ := status.FromError(err)
		body, _ := json.Marshal(map[string]string{
			"code":    st.Code().String(),
			"message": st.Message(),
		})

		header := http.Header{}
		header.Set("Content-Type", "application/json")

		return &Response{
			StatusCode: httpStatusFromCode(st.Code()),
			Header:     header,
			Body:       body,
		}, nil
	}

	header := http.Header{}
	header.Set("Content-Type", "application/grpc+proto")

	return &Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       reply,
	}, nil
}

func (c *GRPCCaller) connect() (*grpc.ClientConn, error) {
	addr := c.descriptor.RPCAddress()
	if addr == "" {
		return nil, fmt.Errorf("service %s declares no rpc endpoint", c.descriptor.Name)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, err
	}

	c.conn = conn
	return conn, nil
}

func (c *GRPCCaller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// rawCodec moves message bytes through grpc untouched. It keeps the proto
// name so the wire content-subtype stays application/grpc+proto.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("rawCodec: expected []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("rawCodec: expected *[]byte, got %T", v)
	}
	*b = data
	return nil
}

func (rawCodec) Name() string { return "proto" }

// httpStatusFromCode translates a backend gRPC status into the HTTP status
// surfaced to the caller.
func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
