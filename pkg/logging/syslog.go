package logging

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Severities of the logging levels the shell accepts.
const (
	SyslogError   = 3
	SyslogWarning = 4
	SyslogInfo    = 6
	SyslogDebug   = 7
)

// DefaultSyslogPort is the port "logging host" sends to.
const DefaultSyslogPort = 514

// Messages go out as local7, the facility switches log to by default.
const facilityLocal7 = 23

var severities = []struct {
	name  string
	level int
}{
	{"error", SyslogError},
	{"warning", SyslogWarning},
	{"info", SyslogInfo},
	{"debug", SyslogDebug},
}

// SeverityNames lists the "logging level" keywords, most severe first.
var SeverityNames = func() []string {
	out := make([]string, len(severities))
	for i, s := range severities {
		out[i] = s.name
	}
	return out
}()

// ParseSeverity maps a "logging level" keyword to its severity, or 0 for
// no filter.
func ParseSeverity(name string) int {
	for _, s := range severities {
		if s.name == name {
			return s.level
		}
	}
	return 0
}

// SyslogClient forwards log records to one "logging host" over UDP.
// Messages carry the switch's configured host name and a
// %SHELL-<severity>-LOG tag, as a switch's own log lines do.
type SyslogClient struct {
	Addr string
	// MinSeverity drops messages less severe than it; 0 sends everything.
	MinSeverity int

	conn     net.Conn
	hostname func() string
	now      func() time.Time
}

// NewSyslogClient dials host:port. hostname is consulted on every message
// so a later "hostname" command is reflected.
func NewSyslogClient(host string, port int, hostname func() string) (*SyslogClient, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("logging host %s: %w", addr, err)
	}
	if hostname == nil {
		hostname = func() string { return "switch" }
	}
	return &SyslogClient{Addr: addr, conn: conn, hostname: hostname, now: time.Now}, nil
}

// message renders one datagram: "<PRI>Mmm dd hh:mm:ss HOST %SHELL-N-LOG: msg".
func (s *SyslogClient) message(severity int, msg string) string {
	host := s.hostname()
	return fmt.Sprintf("<%d>%s %s %%SHELL-%d-LOG: %s",
		facilityLocal7*8+severity, s.now().Format(time.Stamp), host, severity, msg)
}

// Send writes msg at severity.
func (s *SyslogClient) Send(severity int, msg string) error {
	_, err := s.conn.Write([]byte(s.message(severity, msg)))
	return err
}

// ShouldSend reports whether severity passes the client's level.
func (s *SyslogClient) ShouldSend(severity int) bool {
	return s.MinSeverity == 0 || severity <= s.MinSeverity
}

// Close releases the socket.
func (s *SyslogClient) Close() error { return s.conn.Close() }
