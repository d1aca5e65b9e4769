package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/pgx404/RegretMarket/internal/core"
	"github.com/pgx404/RegretMarket/internal/observability"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	svc           RegretServer
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the servers.
type ServerDeps struct {
	Service       RegretServer
	Metrics       *observability.Metrics
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates a gRPC server with RegretService and the health
// service registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(metricsInterceptor(deps.Metrics)))
	grpcServer.RegisterService(&ServiceDesc, deps.Service)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		svc:           deps.Service,
		healthChecker: deps.HealthChecker,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway serves the REST routes and health endpoints (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP gateway listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the HTTP handler: REST routes on a gateway mux plus
// /healthz and /readyz.
func (s *GRPCServer) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	if err := registerRoutes(mux, s.svc); err != nil {
		return nil, err
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}

func metricsInterceptor(m *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if m != nil {
			endpoint := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
			m.QueryRequests.WithLabelValues(endpoint, status.Code(err).String()).Inc()
			m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// ============================================================================
// REST routes
// ============================================================================

type route struct {
	method  string
	pattern string
	handle  func(ctx context.Context, svc RegretServer, r *http.Request, params map[string]string) (any, error)
}

var routes = []route{
	{"POST", "/v1/commands/{op}", func(ctx context.Context, svc RegretServer, r *http.Request, p map[string]string) (any, error) {
		req := &SubmitRequest{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		req.Op = p["op"]
		return svc.Submit(ctx, req)
	}},
	{"POST", "/v1/prices", func(ctx context.Context, svc RegretServer, r *http.Request, _ map[string]string) (any, error) {
		req := &PriceRequest{}
		if err := decodeBody(r, req); err != nil {
			return nil, err
		}
		return svc.UpdatePrice(ctx, req)
	}},
	{"GET", "/v1/position", func(ctx context.Context, svc RegretServer, r *http.Request, _ map[string]string) (any, error) {
		q := r.URL.Query()
		owner, err := parseOwner(q.Get("owner"))
		if err != nil {
			return nil, err
		}
		var id uint64
		if raw := q.Get("position_id"); raw != "" {
			if id, err = strconv.ParseUint(raw, 10, 64); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid position_id: %v", err)
			}
		}
		return svc.GetPosition(ctx, &core.PositionRef{Owner: owner, Pair: q.Get("pair"), PositionID: id})
	}},
	{"GET", "/v1/positions", func(ctx context.Context, svc RegretServer, r *http.Request, _ map[string]string) (any, error) {
		q := r.URL.Query()
		owner, err := parseOwner(q.Get("owner"))
		if err != nil {
			return nil, err
		}
		includeClosed, _ := strconv.ParseBool(q.Get("include_closed"))
		return svc.ListPositions(ctx, &ListPositionsRequest{Owner: owner, Pair: q.Get("pair"), IncludeClosed: includeClosed})
	}},
	{"GET", "/v1/vaults/{token_mint}", func(ctx context.Context, svc RegretServer, _ *http.Request, p map[string]string) (any, error) {
		return svc.GetVault(ctx, &VaultRequest{TokenMint: p["token_mint"]})
	}},
	{"GET", "/v1/balances/{owner}/{token_mint}", func(ctx context.Context, svc RegretServer, _ *http.Request, p map[string]string) (any, error) {
		owner, err := parseOwner(p["owner"])
		if err != nil {
			return nil, err
		}
		return svc.GetBalance(ctx, &BalanceRequest{Owner: owner, TokenMint: p["token_mint"]})
	}},
	{"GET", "/v1/markets", func(ctx context.Context, svc RegretServer, _ *http.Request, _ map[string]string) (any, error) {
		return svc.ListMarkets(ctx, &Empty{})
	}},
	{"GET", "/v1/config", func(ctx context.Context, svc RegretServer, _ *http.Request, _ map[string]string) (any, error) {
		return svc.GetConfig(ctx, &Empty{})
	}},
	{"GET", "/v1/admin/integrity", func(ctx context.Context, svc RegretServer, _ *http.Request, _ map[string]string) (any, error) {
		return svc.VerifyIntegrity(ctx, &Empty{})
	}},
}

func registerRoutes(mux *runtime.ServeMux, svc RegretServer) error {
	for _, rt := range routes {
		rt := rt
		err := mux.HandlePath(rt.method, rt.pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			resp, err := rt.handle(r.Context(), svc, r, params)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
		if err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

// --- Helpers ---

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "read body: %v", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode body: %v", err)
	}
	return nil
}

func parseOwner(s string) (uuid.UUID, error) {
	owner, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid owner: %v", err)
	}
	return owner, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(toStatus(err))
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), errorBody{
		Code:    st.Code().String(),
		Message: st.Message(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
