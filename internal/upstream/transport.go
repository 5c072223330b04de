package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

var ErrNoRefreshToken = errors.New("no refresh token")

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// AuthTransport attaches the stored bearer token to every request. On a 401
// it refreshes once and retries once. If the refresh fails the tokens are
// cleared and the original 401 response is returned unchanged.
type AuthTransport struct {
	Base      http.RoundTripper
	Tokens    TokenStore
	Refresher Refresher
	// Login obtains a fresh pair when the store is empty. Optional.
	Login  func(ctx context.Context) (TokenPair, error)
	Logger logrus.FieldLogger
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	pair, err := t.Tokens.Load(ctx)
	if err != nil {
		t.logger().WithError(err).Warn("load upstream tokens failed")
		pair = TokenPair{}
	}
	if pair.Access == "" && t.Login != nil {
		if fresh, loginErr := t.Login(ctx); loginErr == nil {
			pair = fresh
			t.save(ctx, pair)
		} else {
			t.logger().WithError(loginErr).Warn("upstream login failed")
		}
	}

	resp, err := t.base().RoundTrip(withBearer(req, pair.Access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	retry, ok := cloneForRetry(req)
	if !ok || t.Refresher == nil {
		return resp, nil
	}

	refreshed, refreshErr := t.refresh(ctx, pair.Refresh)
	if refreshErr != nil {
		t.logger().WithError(refreshErr).Warn("upstream token refresh failed, clearing tokens")
		if clearErr := t.Tokens.Clear(ctx); clearErr != nil {
			t.logger().WithError(clearErr).Warn("clear upstream tokens failed")
		}
		return resp, nil
	}
	t.save(ctx, refreshed)

	drain(resp)
	return t.base().RoundTrip(withBearer(retry, refreshed.Access))
}

func (t *AuthTransport) refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, ErrNoRefreshToken
	}
	pair, err := t.Refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.Refresh == "" {
		pair.Refresh = refreshToken
	}
	return pair, nil
}

func (t *AuthTransport) save(ctx context.Context, pair TokenPair) {
	if err := t.Tokens.Save(ctx, pair); err != nil {
		t.logger().WithError(err).Warn("save upstream tokens failed")
	}
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *AuthTransport) logger() logrus.FieldLogger {
	if t.Logger != nil {
		return t.Logger
	}
	return logrus.StandardLogger()
}

func withBearer(req *http.Request, access string) *http.Request {
	out := req.Clone(req.Context())
	if access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}

// cloneForRetry returns a copy with a fresh body, or false when the body
// cannot be replayed.
func cloneForRetry(req *http.Request) (*http.Request, bool) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
