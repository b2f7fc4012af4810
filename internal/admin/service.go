// Package admin exposes the privileged operator channel over gRPC. The
// service is defined in api/proto/admin/v1/admin.proto; its messages are
// protobuf well-known types.
package admin

//go:generate protoc -I ../../api/proto --go-grpc_out=../.. --go-grpc_opt=module=github.com/cory-johannsen/tcpchat admin/v1/admin.proto

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/tcpchat/internal/admin/adminv1"
	"github.com/cory-johannsen/tcpchat/internal/chat"
)

// Operator is the slice of the chat engine the admin service drives.
type Operator interface {
	Kick(ctx context.Context, name string) error
	ToggleModerator(name string) (bool, error)
	Moderators() []string
	Announce(text string) error
	Online() []chat.SessionInfo
	Lookup(username string) (chat.SessionInfo, bool)
}

// Service implements adminv1.AdminServiceServer on top of an Operator.
type Service struct {
	adminv1.UnimplementedAdminServiceServer
	op Operator
}

// NewService creates the admin service.
//
// Precondition: op must be non-nil.
func NewService(op Operator) *Service {
	return &Service{op: op}
}

func username(in *wrapperspb.StringValue) (string, error) {
	name := strings.TrimSpace(in.GetValue())
	if name == "" {
		return "", status.Error(codes.InvalidArgument, "username is required")
	}
	return name, nil
}

func operatorError(err error) error {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Mod toggles the moderator flag of a connected user.
func (s *Service) Mod(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	name, err := username(in)
	if err != nil {
		return nil, err
	}
	on, err := s.op.ToggleModerator(name)
	if err != nil {
		return nil, operatorError(err)
	}
	return wrapperspb.Bool(on), nil
}

// Mods lists current moderators.
func (s *Service) Mods(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	names := s.op.Moderators()
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(names))}
	for _, n := range names {
		out.Values = append(out.Values, structpb.NewStringValue(n))
	}
	return out, nil
}

// Kick returns a connected user to the lobby.
func (s *Service) Kick(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	name, err := username(in)
	if err != nil {
		return nil, err
	}
	if err := s.op.Kick(ctx, name); err != nil {
		return nil, operatorError(err)
	}
	return &emptypb.Empty{}, nil
}

// Announce broadcasts a server message.
func (s *Service) Announce(_ context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.op.Announce(in.GetValue()); err != nil {
		return nil, operatorError(err)
	}
	return &emptypb.Empty{}, nil
}

// Who lists every connected session.
func (s *Service) Who(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	infos := s.op.Online()
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(infos))}
	for _, info := range infos {
		out.Values = append(out.Values, structpb.NewStructValue(sessionStruct(info)))
	}
	return out, nil
}

// Whois describes the session holding a username.
func (s *Service) Whois(_ context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	name, err := username(in)
	if err != nil {
		return nil, err
	}
	info, ok := s.op.Lookup(name)
	if !ok {
		return nil, operatorError(chat.ErrNotFound)
	}
	return sessionStruct(info), nil
}

func sessionStruct(info chat.SessionInfo) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":        structpb.NewStringValue(info.ID.String()),
		"remote":    structpb.NewStringValue(info.RemoteAddr),
		"alias":     structpb.NewStringValue(info.Alias),
		"username":  structpb.NewStringValue(info.Username),
		"state":     structpb.NewStringValue(info.State.String()),
		"moderator": structpb.NewBoolValue(info.Moderator),
		"private":   structpb.NewBoolValue(info.PrivateTarget != uuid.Nil),
		"seat":      structpb.NewStringValue(info.Seat.String()),
	}}
}
