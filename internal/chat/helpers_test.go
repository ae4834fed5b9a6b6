package chat

import "github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"

func testLogger() *logging.Logger {
	return logging.New("error")
}
