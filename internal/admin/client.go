package admin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/tcpchat/internal/admin/adminv1"
)

// Session is one row of a Who listing.
type Session struct {
	ID        string
	Remote    string
	Alias     string
	Username  string
	State     string
	Moderator bool
	Private   bool
	Seat      string
}

// Client calls AdminService.
type Client struct {
	conn *grpc.ClientConn
	rpc  adminv1.AdminServiceClient
}

type tokenCreds string

func (t tokenCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{AuthorizationKey: string(t)}, nil
}

func (tokenCreds) RequireTransportSecurity() bool { return false }

// Dial connects to the admin server at addr. A non-empty token is attached
// to every call. Extra options are appended, which lets tests dial bufconn.
func Dial(addr, token string, opts ...grpc.DialOption) (*Client, error) {
	all := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		all = append(all, grpc.WithPerRPCCredentials(tokenCreds(token)))
	}
	all = append(all, opts...)
	conn, err := grpc.NewClient(addr, all...)
	if err != nil {
		return nil, fmt.Errorf("admin: dialing %s: %w", addr, err)
	}
	return &Client{conn: conn, rpc: adminv1.NewAdminServiceClient(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Mod toggles moderator rights for name and returns the new value.
func (c *Client) Mod(ctx context.Context, name string) (bool, error) {
	out, err := c.rpc.Mod(ctx, wrapperspb.String(name))
	if err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Mods lists moderators.
func (c *Client) Mods(ctx context.Context) ([]string, error) {
	out, err := c.rpc.Mods(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// Kick returns name to the lobby.
func (c *Client) Kick(ctx context.Context, name string) error {
	_, err := c.rpc.Kick(ctx, wrapperspb.String(name))
	return err
}

// Announce broadcasts text as a server message.
func (c *Client) Announce(ctx context.Context, text string) error {
	_, err := c.rpc.Announce(ctx, wrapperspb.String(text))
	return err
}

// Who lists connected sessions.
func (c *Client) Who(ctx context.Context) ([]Session, error) {
	out, err := c.rpc.Who(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		sessions = append(sessions, sessionFrom(v.GetStructValue()))
	}
	return sessions, nil
}

// Whois describes the session holding username.
func (c *Client) Whois(ctx context.Context, username string) (Session, error) {
	out, err := c.rpc.Whois(ctx, wrapperspb.String(username))
	if err != nil {
		return Session{}, err
	}
	return sessionFrom(out), nil
}

func sessionFrom(st *structpb.Struct) Session {
	f := st.GetFields()
	return Session{
		ID:        f["id"].GetStringValue(),
		Remote:    f["remote"].GetStringValue(),
		Alias:     f["alias"].GetStringValue(),
		Username:  f["username"].GetStringValue(),
		State:     f["state"].GetStringValue(),
		Moderator: f["moderator"].GetBoolValue(),
		Private:   f["private"].GetBoolValue(),
		Seat:      f["seat"].GetStringValue(),
	}
}
