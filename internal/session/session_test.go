package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type fakeTokenSource struct {
	issued atomic.Int32
	issue  func(ctx context.Context) (Token, error)
}

func (f *fakeTokenSource) Issue(ctx context.Context) (Token, error) {
	f.issued.Add(1)

	return f.issue(ctx)
}

type SessionTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (suite *SessionTestSuite) SetupTest() {
	suite.ctx = context.Background()
}

func (suite *SessionTestSuite) config() Config {
	return Config{
		RefreshMargin: time.Second,
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		RateLimit:     10000,
		RateBurst:     10000,
	}
}

func (suite *SessionTestSuite) newManager(source TokenSource) *Manager {
	manager, err := NewManager(suite.config(), source, logger.NewNopLogger())
	suite.Require().NoError(err)

	return manager
}

func (suite *SessionTestSuite) TestConfigValidation() {
	config := suite.config()
	config.MaxAttempts = 0
	suite.Assert().Error(config.Validate())

	config = suite.config()
	config.MaxDelay = config.BaseDelay / 2
	suite.Assert().Error(config.Validate())

	config = suite.config()
	suite.Assert().NoError(config.Validate())

	defaultConfig := DefaultConfig()
	suite.Assert().NoError(defaultConfig.Validate())
}

func (suite *SessionTestSuite) TestCredentialsValidation() {
	credentials := Credentials{APIKey: "key"}
	suite.Assert().Error(credentials.Validate())

	credentials.APISecret = "secret"
	suite.Assert().NoError(credentials.Validate())
}

func (suite *SessionTestSuite) TestConcurrentTokenCallsShareOneRefresh() {
	source := &fakeTokenSource{}
	source.issue = func(ctx context.Context) (Token, error) {
		time.Sleep(20 * time.Millisecond) // widen the refresh window

		return Token{Value: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	manager := suite.newManager(source)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			token, err := manager.Token(suite.ctx)
			suite.Assert().NoError(err)
			suite.Assert().Equal("tok-1", token)
		}()
	}
	wg.Wait()

	suite.Assert().Equal(int32(1), source.issued.Load())
}

func (suite *SessionTestSuite) TestTokenRefreshedWhenExpired() {
	source := &fakeTokenSource{}
	source.issue = func(ctx context.Context) (Token, error) {
		if source.issued.Load() == 1 {
			// Already inside the refresh margin.
			return Token{Value: "tok-1", ExpiresAt: time.Now()}, nil
		}

		return Token{Value: "tok-2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	manager := suite.newManager(source)

	token, err := manager.Token(suite.ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal("tok-1", token)

	token, err = manager.Token(suite.ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal("tok-2", token)
	suite.Assert().Equal(int32(2), source.issued.Load())

	// Fresh token is served from cache.
	token, err = manager.Token(suite.ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal("tok-2", token)
	suite.Assert().Equal(int32(2), source.issued.Load())
}

func (suite *SessionTestSuite) TestInvalidateForcesRefresh() {
	source := &fakeTokenSource{}
	source.issue = func(ctx context.Context) (Token, error) {
		return Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	manager := suite.newManager(source)

	_, err := manager.Token(suite.ctx)
	suite.Require().NoError(err)

	manager.Invalidate()

	_, err = manager.Token(suite.ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal(int32(2), source.issued.Load())
}

func (suite *SessionTestSuite) TestAuthFailureFailsFast() {
	source := &fakeTokenSource{}
	source.issue = func(ctx context.Context) (Token, error) {
		return Token{}, errors.New(errors.ErrCodeAuthError, "invalid api key")
	}

	manager := suite.newManager(source)

	_, err := manager.Token(suite.ctx)
	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeAuthError, errors.GetCode(err))
	suite.Assert().Equal(int32(1), source.issued.Load(), "auth failures must not be retried")
}

func (suite *SessionTestSuite) TestDoRetriesTransientUntilExhausted() {
	manager := suite.newManager(&fakeTokenSource{})

	attempts := 0
	err := manager.Do(suite.ctx, func(ctx context.Context) error {
		attempts++

		return errors.New(errors.ErrCodeTransientFailure, "connection reset")
	})

	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeExhausted, errors.GetCode(err))
	suite.Assert().Equal(3, attempts)
}

func (suite *SessionTestSuite) TestDoRecoversWithinBudget() {
	manager := suite.newManager(&fakeTokenSource{})

	attempts := 0
	err := manager.Do(suite.ctx, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrCodeTransientFailure, "connection reset")
		}

		return nil
	})

	suite.Require().NoError(err)
	suite.Assert().Equal(3, attempts)
}

func (suite *SessionTestSuite) TestDoDoesNotRetryBusinessErrors() {
	manager := suite.newManager(&fakeTokenSource{})

	attempts := 0
	err := manager.Do(suite.ctx, func(ctx context.Context) error {
		attempts++

		return errors.New(errors.ErrCodeRejectedByVenue, "insufficient balance")
	})

	suite.Require().Error(err)
	suite.Assert().Equal(errors.ErrCodeRejectedByVenue, errors.GetCode(err))
	suite.Assert().Equal(1, attempts)
}

func (suite *SessionTestSuite) TestDoAbortsOnContextCancel() {
	manager := suite.newManager(&fakeTokenSource{})

	ctx, cancel := context.WithCancel(suite.ctx)

	attempts := 0
	err := manager.Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()

		return errors.New(errors.ErrCodeTransientFailure, "connection reset")
	})

	suite.Require().Error(err)
	suite.Assert().True(errors.Is(err, context.Canceled))
	suite.Assert().Equal(1, attempts)
}

func (suite *SessionTestSuite) TestDoEnforcesRateBudget() {
	config := suite.config()
	config.RateLimit = 100
	config.RateBurst = 1

	source := &fakeTokenSource{}
	manager, err := NewManager(config, source, logger.NewNopLogger())
	suite.Require().NoError(err)

	start := time.Now()
	for i := 0; i < 4; i++ {
		suite.Require().NoError(manager.Do(suite.ctx, func(ctx context.Context) error {
			return nil
		}))
	}

	// Burst of 1 at 100 rps: three of the four calls wait ~10ms each.
	suite.Assert().GreaterOrEqual(time.Since(start), 25*time.Millisecond)
}
