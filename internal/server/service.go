package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pgx404/RegretMarket/internal/core"
	"github.com/pgx404/RegretMarket/internal/ingestion"
	"github.com/pgx404/RegretMarket/internal/oracle"
	"github.com/pgx404/RegretMarket/internal/query"
	"github.com/pgx404/RegretMarket/internal/state"
)

const serviceName = "regret.v1.RegretService"

// --- Messages ---

type SubmitRequest struct {
	Op        string          `json:"op"`
	RequestID string          `json:"request_id"`
	Params    json.RawMessage `json:"params"`
}

type SubmitResponse struct {
	Result any `json:"result,omitempty"`
}

type ListPositionsRequest struct {
	Owner         uuid.UUID `json:"owner"`
	Pair          string    `json:"pair"`
	IncludeClosed bool      `json:"include_closed"`
}

type ListPositionsResponse struct {
	Positions []query.PositionView `json:"positions"`
}

type VaultRequest struct {
	TokenMint string `json:"token_mint"`
}

type BalanceRequest struct {
	Owner     uuid.UUID `json:"owner"`
	TokenMint string    `json:"token_mint"`
}

type ListMarketsResponse struct {
	Markets []query.MarketView `json:"markets"`
}

type PriceRequest struct {
	FeedID        string `json:"feed_id"`
	Price         int64  `json:"price"`
	Conf          uint64 `json:"conf"`
	Exponent      int32  `json:"exponent"`
	PublishTimeUs int64  `json:"publish_time_us"`
}

type PriceResponse struct {
	Applied bool `json:"applied"`
}

type Empty struct{}

// RegretServer is the RPC surface: commands go through Submit, reads
// through the query methods.
type RegretServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	UpdatePrice(context.Context, *PriceRequest) (*PriceResponse, error)
	GetPosition(context.Context, *core.PositionRef) (*query.PositionView, error)
	ListPositions(context.Context, *ListPositionsRequest) (*ListPositionsResponse, error)
	GetVault(context.Context, *VaultRequest) (*query.VaultView, error)
	GetBalance(context.Context, *BalanceRequest) (*query.BalanceView, error)
	ListMarkets(context.Context, *Empty) (*ListMarketsResponse, error)
	GetConfig(context.Context, *Empty) (*state.Config, error)
	VerifyIntegrity(context.Context, *Empty) (*query.IntegrityReport, error)
}

// unary builds a grpc.MethodDesc for a handler taking *Req.
func unary[Req any, Resp any](name string, call func(RegretServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s: %v", name, err)
			}
			if interceptor == nil {
				return call(srv.(RegretServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RegretServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes RegretService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RegretServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", RegretServer.Submit),
		unary("UpdatePrice", RegretServer.UpdatePrice),
		unary("GetPosition", RegretServer.GetPosition),
		unary("ListPositions", RegretServer.ListPositions),
		unary("GetVault", RegretServer.GetVault),
		unary("GetBalance", RegretServer.GetBalance),
		unary("ListMarkets", RegretServer.ListMarkets),
		unary("GetConfig", RegretServer.GetConfig),
		unary("VerifyIntegrity", RegretServer.VerifyIntegrity),
	},
	Metadata: "regret/v1/service.json",
}

// ============================================================================
// RegretService implementation
// ============================================================================

type regretService struct {
	ingest *ingestion.IngestService
	qs     *query.QueryService
}

// NewRegretService returns the RPC implementation over ingest and qs.
func NewRegretService(ingest *ingestion.IngestService, qs *query.QueryService) RegretServer {
	return &regretService{ingest: ingest, qs: qs}
}

func (s *regretService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.Op == "" {
		return nil, status.Error(codes.InvalidArgument, "op is required")
	}
	body, err := json.Marshal(map[string]any{"request_id": req.RequestID, "params": req.Params})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode command: %v", err)
	}
	cmd, err := ingestion.ParseCommand(req.Op, body)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.ingest.Execute(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitResponse{Result: res}, nil
}

func (s *regretService) UpdatePrice(_ context.Context, req *PriceRequest) (*PriceResponse, error) {
	if req.FeedID == "" {
		return nil, status.Error(codes.InvalidArgument, "feed_id is required")
	}
	applied := s.ingest.UpdatePrice(oracle.PriceData{
		FeedID:      req.FeedID,
		Price:       req.Price,
		Conf:        req.Conf,
		Exponent:    req.Exponent,
		PublishTime: time.UnixMicro(req.PublishTimeUs).UTC(),
	})
	return &PriceResponse{Applied: applied}, nil
}

func (s *regretService) GetPosition(ctx context.Context, req *core.PositionRef) (*query.PositionView, error) {
	if req.Owner == uuid.Nil || req.Pair == "" {
		return nil, status.Error(codes.InvalidArgument, "owner and pair are required")
	}
	v, err := s.qs.GetPosition(ctx, *req)
	return v, toStatus(err)
}

func (s *regretService) ListPositions(ctx context.Context, req *ListPositionsRequest) (*ListPositionsResponse, error) {
	if req.Owner == uuid.Nil || req.Pair == "" {
		return nil, status.Error(codes.InvalidArgument, "owner and pair are required")
	}
	views, err := s.qs.ListPositions(ctx, req.Owner, req.Pair, req.IncludeClosed)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListPositionsResponse{Positions: views}, nil
}

func (s *regretService) GetVault(ctx context.Context, req *VaultRequest) (*query.VaultView, error) {
	if req.TokenMint == "" {
		return nil, status.Error(codes.InvalidArgument, "token_mint is required")
	}
	v, err := s.qs.GetVault(ctx, req.TokenMint)
	return v, toStatus(err)
}

func (s *regretService) GetBalance(ctx context.Context, req *BalanceRequest) (*query.BalanceView, error) {
	if req.Owner == uuid.Nil || req.TokenMint == "" {
		return nil, status.Error(codes.InvalidArgument, "owner and token_mint are required")
	}
	v, err := s.qs.GetBalance(ctx, req.Owner, req.TokenMint)
	return v, toStatus(err)
}

func (s *regretService) ListMarkets(ctx context.Context, _ *Empty) (*ListMarketsResponse, error) {
	views, err := s.qs.ListMarkets(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListMarketsResponse{Markets: views}, nil
}

func (s *regretService) GetConfig(ctx context.Context, _ *Empty) (*state.Config, error) {
	cfg, err := s.qs.GetConfig(ctx)
	return cfg, toStatus(err)
}

func (s *regretService) VerifyIntegrity(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	report, err := s.qs.VerifyIntegrity(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, fmt.Sprintf("verify integrity: %v", err))
	}
	return report, nil
}
