package binance

import (
	"context"

	"github.com/adshao/go-binance/v2/common"
	"github.com/quantarc/quantarc/pkg/errors"
)

// classifyError maps raw Binance API failures onto the engine error taxonomy
// so that the session retry policy and callers can act on the code instead of
// parsing venue messages.
//
// Venue code reference:
//
//	-1003  too many requests        -> transient (rate limited upstream)
//	-1021  timestamp out of window  -> transient (clock drift, safe to retry)
//	-1022  invalid signature        -> auth
//	-2010  new order rejected       -> rejected by venue
//	-2011  cancel rejected          -> not found
//	-2013  order does not exist     -> not found
//	-2014  bad API key format       -> auth
//	-2015  invalid API key or IP    -> auth
func classifyError(err error, message string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1021:
			return errors.Wrap(errors.ErrCodeTransientFailure, message, err)
		case -1022, -2014, -2015:
			return errors.Wrap(errors.ErrCodeAuthError, message, err)
		case -2010:
			return errors.Wrap(errors.ErrCodeRejectedByVenue, message, err)
		case -2011, -2013:
			return errors.Wrap(errors.ErrCodeNotFound, message, err)
		}

		// Gateway-level failures carry positive HTTP status codes.
		if apiErr.Code >= 500 && apiErr.Code < 600 {
			return errors.Wrap(errors.ErrCodeTransientFailure, message, err)
		}

		return errors.Wrap(errors.ErrCodeRejectedByVenue, message, err)
	}

	// No API error in the chain means the request never completed: network
	// failure, timeout, or connection reset.
	return errors.Wrap(errors.ErrCodeTransientFailure, message, err)
}
