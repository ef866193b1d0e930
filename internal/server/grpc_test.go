package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
	"github.com/hanabi-live/hanabi-server-go/internal/user/usertest"
)

type nopPresence struct{}

func (nopPresence) SetStatus(int, user.Status, int) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) SendAll(string, any)   {}
func (nopBroadcaster) Send(int, string, any) {}

func startAdmin(t *testing.T, srv AdminServer) *AdminClient {
	t.Helper()
	logger := zaptest.NewLogger(t)
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(ChainUnaryInterceptors(
		RecoveryInterceptor(logger),
		LoggingInterceptor(logger),
	)))
	RegisterAdminServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewAdminClient(cc)
}

type adminFixture struct {
	client   *AdminClient
	tables   *table.Manager
	registry *user.Registry
	writer   *user.Writer
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	registry, writer := user.NewRegistry()
	tables := table.NewManager(nopPresence{}, nopBroadcaster{}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tables.Close(ctx)
	})
	srv := NewAdminServer(registry, tables, "v1.2.3", zaptest.NewLogger(t))
	return &adminFixture{
		client:   startAdmin(t, srv),
		tables:   tables,
		registry: registry,
		writer:   writer,
	}
}

func TestGetServerState(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.writer.Set(user.Session{Identity: user.Identity{UserID: 1, Username: "Alice"}, Conn: usertest.NewConn("a")})
	_, err := f.tables.Create(ctx, table.CreateParams{OwnerID: 1, OwnerName: "Alice"})
	require.NoError(t, err)

	var header metadata.MD
	resp, err := f.client.GetServerState(ctx, &GetServerStateRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.State.Sessions)
	assert.Equal(t, 1, resp.State.Tables)
	assert.Equal(t, "v1.2.3", resp.State.Version)
	assert.Positive(t, resp.State.Goroutines)
	assert.WithinDuration(t, time.Now(), resp.State.ServerTime.AsTime(), time.Minute)
	assert.NotEmpty(t, header.Get(RequestIDKey))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newAdminFixture(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDKey, "req-42")
	var header metadata.MD
	_, err := f.client.GetServerState(ctx, &GetServerStateRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(RequestIDKey))
}

func TestListUsers(t *testing.T) {
	f := newAdminFixture(t)
	connected := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f.writer.Set(user.Session{
		Identity:    user.Identity{UserID: 2, Username: "Bob"},
		SessionID:   9,
		Conn:        usertest.NewConn("10.0.0.2:5000"),
		Status:      user.StatusPlaying,
		TableID:     4,
		Inactive:    true,
		ConnectedAt: connected,
	})

	resp, err := f.client.ListUsers(context.Background(), &ListUsersRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Users, 1)
	got := resp.Users[0]
	assert.Equal(t, 2, got.UserID)
	assert.Equal(t, "Bob", got.Username)
	assert.Equal(t, "Playing", got.Status)
	assert.Equal(t, 4, got.TableID)
	assert.True(t, got.Inactive)
	assert.Equal(t, uint64(9), got.SessionID)
	assert.Equal(t, "10.0.0.2:5000", got.RemoteAddr)
	assert.Equal(t, connected, got.ConnectedAt.AsTime())
}

func TestGetTable(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	id, err := f.tables.Create(ctx, table.CreateParams{OwnerID: 1, OwnerName: "Alice", Name: "room"})
	require.NoError(t, err)
	require.NoError(t, f.tables.Submit(ctx, id, table.Join{UserID: 2, Name: "Bob"}))

	resp, err := f.client.GetTable(ctx, &GetTableRequest{TableID: id})
	require.NoError(t, err)
	assert.Equal(t, "room", resp.Table.Summary.Name)
	assert.Equal(t, []string{"Alice", "Bob"}, resp.Table.Summary.Players)
	require.Len(t, resp.Table.Players, 2)
	assert.Nil(t, resp.Table.Game)

	_, err = f.client.GetTable(ctx, &GetTableRequest{TableID: 99})
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = f.client.GetTable(ctx, &GetTableRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTerminateTable(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	id, err := f.tables.Create(ctx, table.CreateParams{OwnerID: 1, OwnerName: "Alice"})
	require.NoError(t, err)
	require.NoError(t, f.tables.Submit(ctx, id, table.Join{UserID: 2, Name: "Bob"}))
	require.NoError(t, f.tables.Submit(ctx, id, table.Start{UserID: 1}))

	_, err = f.client.TerminateTable(ctx, &TerminateTableRequest{TableID: id})
	require.NoError(t, err)
	assert.Zero(t, f.tables.Count())

	_, err = f.client.TerminateTable(ctx, &TerminateTableRequest{TableID: id})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

type panickingServer struct {
	AdminServer
}

func (panickingServer) GetServerState(context.Context, *GetServerStateRequest) (*GetServerStateResponse, error) {
	panic("boom")
}

func TestRecoveryInterceptor(t *testing.T) {
	client := startAdmin(t, panickingServer{})
	_, err := client.GetServerState(context.Background(), &GetServerStateRequest{})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestChainOrder(t *testing.T) {
	var calls []string
	record := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			calls = append(calls, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(record("a"), record("b"), record("c"))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		calls = append(calls, "handler")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "handler"}, calls)
}

func TestSnapshotSurvivesJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	in := &GetTableResponse{Table: TableView{Game: &game.Snapshot{Score: 12}}}
	data, err := codec.Marshal(in)
	require.NoError(t, err)
	var out GetTableResponse
	require.NoError(t, codec.Unmarshal(data, &out))
	require.NotNil(t, out.Table.Game)
	assert.Equal(t, 12, out.Table.Game.Score)
}
