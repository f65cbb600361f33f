package nameserver

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Sh00ty/rendezvous/internal/models"
)

type Registry interface {
	Publish(ctx context.Context, name string, endpoint string) error
	Resolve(ctx context.Context, name string) (string, error)
	Retract(ctx context.Context, name string) error
}

// Server exposes a registry to workers in other processes.
type Server struct {
	registry Registry
}

func NewServer(registry Registry) *Server {
	return &Server{
		registry: registry,
	}
}

func (srv *Server) Publish(ctx context.Context, req *RecordRequest) (*RecordResponse, error) {
	if req.Name == "" || req.Endpoint == "" {
		return nil, status.Errorf(codes.InvalidArgument, "name and endpoint are required")
	}
	err := srv.registry.Publish(ctx, req.Name, req.Endpoint)
	if err != nil {
		return nil, toStatus(err)
	}
	log.Info().Msgf("published %s -> %s", req.Name, req.Endpoint)
	return &RecordResponse{Endpoint: req.Endpoint}, nil
}

func (srv *Server) Resolve(ctx context.Context, req *RecordRequest) (*RecordResponse, error) {
	if req.Name == "" {
		return nil, status.Errorf(codes.InvalidArgument, "name is required")
	}
	endpoint, err := srv.registry.Resolve(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecordResponse{Endpoint: endpoint}, nil
}

func (srv *Server) Retract(ctx context.Context, req *RecordRequest) (*RecordResponse, error) {
	if req.Name == "" {
		return nil, status.Errorf(codes.InvalidArgument, "name is required")
	}
	err := srv.registry.Retract(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	log.Info().Msgf("retracted %s", req.Name)
	return &RecordResponse{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, models.ErrAlreadyPublished):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, models.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Errorf(codes.Internal, "registry failure: %v", err)
	}
}
