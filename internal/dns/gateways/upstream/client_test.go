package upstream

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/haukened/rr-dns/internal/dns/domain"
)

// MockCodec implements wire.DNSCodec for testing.
type MockCodec struct {
	mock.Mock
}

func (m *MockCodec) EncodeQuery(query domain.Question) ([]byte, error) {
	args := m.Called(query)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCodec) DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error) {
	args := m.Called(data, expectedID, now)
	return args.Get(0).(domain.DNSResponse), args.Error(1)
}

func (m *MockCodec) DecodeQuery(data []byte) (domain.Question, error) {
	args := m.Called(data)
	return args.Get(0).(domain.Question), args.Error(1)
}

func (m *MockCodec) EncodeResponse(resp domain.DNSResponse) ([]byte, error) {
	args := m.Called(resp)
	return args.Get(0).([]byte), args.Error(1)
}

// MockConn implements net.Conn for testing.
type MockConn struct {
	mock.Mock
	readData         []byte
	setDeadlineError error
}

func (m *MockConn) Read(b []byte) (n int, err error) {
	args := m.Called(b)
	if m.readData != nil {
		copy(b, m.readData)
		return len(m.readData), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Write(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) LocalAddr() net.Addr  { return nil }
func (m *MockConn) RemoteAddr() net.Addr { return nil }
func (m *MockConn) SetDeadline(t time.Time) error {
	if m.setDeadlineError != nil {
		return m.setDeadlineError
	}
	return nil
}
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func createTestQuery() domain.Question {
	return domain.Question{
		ID:    12345,
		Name:  "example.com.",
		Type:  domain.RRTypeA,
		Class: domain.RRClassIN,
	}
}

func createTestResponse() domain.DNSResponse {
	rr, _ := domain.NewAuthoritativeRR("example.com.", domain.RRClassIN, 300, domain.RDataA{Addr: net.ParseIP("1.2.3.4")})
	return domain.DNSResponse{
		ID:      12345,
		RCode:   domain.NOERROR,
		Answers: []domain.ResourceRecord{rr},
	}
}

func createTimeFixture() time.Time {
	return time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{
			name: "valid options",
			opts: Options{Timeout: 5 * time.Second, Codec: &MockCodec{}},
		},
		{
			name:    "no codec provided",
			opts:    Options{Timeout: 5 * time.Second},
			wantErr: ErrCodecRequired,
		},
		{
			name: "default timeout applied",
			opts: Options{Codec: &MockCodec{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, client)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, client)

			if tt.opts.Timeout <= 0 {
				assert.Equal(t, 5*time.Second, client.timeout)
			} else {
				assert.Equal(t, tt.opts.Timeout, client.timeout)
			}
			if tt.opts.Dial == nil {
				assert.NotNil(t, client.dial)
			}
		})
	}
}

func TestClient_ensureContextDeadline(t *testing.T) {
	client, err := NewClient(Options{Timeout: 2 * time.Second, Codec: &MockCodec{}})
	assert.NoError(t, err)

	t.Run("context without deadline", func(t *testing.T) {
		ctx := context.Background()
		resultCtx, cancel := client.ensureContextDeadline(ctx)

		assert.NotNil(t, cancel, "cancel function should be provided when timeout is added")
		_, hasDeadline := resultCtx.Deadline()
		assert.True(t, hasDeadline, "context should have deadline")
		cancel()
	})

	t.Run("context with existing deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		resultCtx, cancelFunc := client.ensureContextDeadline(ctx)

		assert.Nil(t, cancelFunc, "cancel function should be nil when deadline already exists")
		assert.Equal(t, ctx, resultCtx, "context should be unchanged")
	})
}

func TestClient_Query(t *testing.T) {
	tf := createTimeFixture()
	query := createTestQuery()
	response := createTestResponse()
	queryBytes := []byte("query")
	responseBytes := []byte("response")

	tests := []struct {
		name       string
		setupMocks func(*MockCodec, *MockConn)
		dialErr    error
		wantErr    string
		wantResp   domain.DNSResponse
	}{
		{
			name: "successful query",
			setupMocks: func(codec *MockCodec, conn *MockConn) {
				codec.On("EncodeQuery", query).Return(queryBytes, nil)
				codec.On("DecodeResponse", responseBytes, query.ID, tf).Return(response, nil)
				conn.On("Write", queryBytes).Return(len(queryBytes), nil)
				conn.On("Read", mock.AnythingOfType("[]uint8")).Return(len(responseBytes), nil)
				conn.On("Close").Return(nil)
				conn.readData = responseBytes
			},
			wantResp: response,
		},
		{
			name:       "dial error",
			dialErr:    errors.New("connection refused"),
			setupMocks: func(codec *MockCodec, conn *MockConn) {},
			wantErr:    "failed to connect",
		},
		{
			name: "encode error",
			setupMocks: func(codec *MockCodec, conn *MockConn) {
				codec.On("EncodeQuery", query).Return([]byte(nil), errors.New("encode failed"))
				conn.On("Close").Return(nil)
			},
			wantErr: "encode failed",
		},
		{
			name: "write error",
			setupMocks: func(codec *MockCodec, conn *MockConn) {
				codec.On("EncodeQuery", query).Return(queryBytes, nil)
				conn.On("Write", queryBytes).Return(0, errors.New("write failed"))
				conn.On("Close").Return(nil)
			},
			wantErr: "write failed",
		},
		{
			name: "read error",
			setupMocks: func(codec *MockCodec, conn *MockConn) {
				codec.On("EncodeQuery", query).Return(queryBytes, nil)
				conn.On("Write", queryBytes).Return(len(queryBytes), nil)
				conn.On("Read", mock.AnythingOfType("[]uint8")).Return(0, errors.New("read failed"))
				conn.On("Close").Return(nil)
			},
			wantErr: "read failed",
		},
		{
			name: "decode error",
			setupMocks: func(codec *MockCodec, conn *MockConn) {
				codec.On("EncodeQuery", query).Return(queryBytes, nil)
				codec.On("DecodeResponse", responseBytes, query.ID, tf).Return(domain.DNSResponse{}, errors.New("decode failed"))
				conn.On("Write", queryBytes).Return(len(queryBytes), nil)
				conn.On("Read", mock.AnythingOfType("[]uint8")).Return(len(responseBytes), nil)
				conn.On("Close").Return(nil)
				conn.readData = responseBytes
			},
			wantErr: "decode failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := &MockCodec{}
			conn := &MockConn{}
			tt.setupMocks(codec, conn)

			dial := func(ctx context.Context, network, address string) (net.Conn, error) {
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				return conn, nil
			}

			client, err := NewClient(Options{Timeout: time.Second, Codec: codec, Dial: dial})
			assert.NoError(t, err)

			resp, err := client.Query(context.Background(), "1.1.1.1:53", query, tf)

			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantResp, resp)
			}

			codec.AssertExpectations(t)
			conn.AssertExpectations(t)
		})
	}
}

func TestClient_Query_ContextCancellation(t *testing.T) {
	tf := createTimeFixture()
	query := createTestQuery()
	queryBytes := []byte("query")

	codec := &MockCodec{}
	conn := &MockConn{}

	codec.On("EncodeQuery", query).Return(queryBytes, nil)
	conn.On("Write", queryBytes).Return(len(queryBytes), nil)
	conn.On("Close").Return(nil)
	conn.On("Read", mock.AnythingOfType("[]uint8")).Run(func(args mock.Arguments) {
		time.Sleep(50 * time.Millisecond)
	}).Return(0, errors.New("read timeout"))

	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return conn, nil
	}

	client, err := NewClient(Options{Timeout: time.Second, Codec: codec, Dial: dial})
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = client.Query(ctx, "1.1.1.1:53", query, tf)
	assert.Error(t, err)

	codec.AssertExpectations(t)
}

func TestClient_Query_SetDeadlineError(t *testing.T) {
	query := createTestQuery()
	tf := createTimeFixture()

	codec := &MockCodec{}
	conn := &MockConn{setDeadlineError: errors.New("set deadline failed")}
	conn.On("Close").Return(nil)
	codec.On("EncodeQuery", query).Return([]byte("query"), nil)
	conn.On("Write", mock.AnythingOfType("[]uint8")).Return(4, nil)
	conn.On("Read", mock.AnythingOfType("[]uint8")).Return(0, errors.New("read failed"))

	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return conn, nil
	}

	client, err := NewClient(Options{Timeout: time.Second, Codec: codec, Dial: dial})
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// SetDeadline's error is not checked by Query (best-effort), so the
	// request proceeds and fails at the read instead.
	_, err = client.Query(ctx, "1.1.1.1:53", query, tf)
	assert.Error(t, err)

	conn.AssertExpectations(t)
}
