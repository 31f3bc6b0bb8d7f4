package transport

import (
	"encoding/json"

	"vocalsnr/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		log.Debugf("Transport: %T %+v (json: %v)", data, data, err)
		return nil
	}
	log.Debugf("Transport: %s", b)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("Transport: LoggingTransport closed")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
