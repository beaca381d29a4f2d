package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/internal/dispatch"
	"github.com/srg/gattcache/pkg/config"
	"github.com/stretchr/testify/suite"
)

// RegistrySuite provides a registry wired to a FakeTransport with inline executors,
// so every callback a test pumps has been delivered when Pump returns.
//
// Basic usage:
//
//	type ConnectSuite struct {
//	    testutils.RegistrySuite
//	}
//
//	func TestConnectSuite(t *testing.T) {
//	    suite.Run(t, new(ConnectSuite))
//	}
//
// Custom policy usage:
//
//	func (s *FilterSuite) SetupTest() {
//	    s.WithConfig().Scan.MinimumRSSI = -70
//
//	    s.RegistrySuite.SetupTest() // Call parent last to apply configuration
//	}
type RegistrySuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Config    *config.Config
	Transport *FakeTransport
	Timers    *ManualTimers
	Delegate  *RecordingDelegate
	Registry  *device.Registry
}

// SetupSuite creates the helper and logger once for all tests.
func (s *RegistrySuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest builds a fresh registry, drains the initial radio event and clears
// the recorded callbacks.
func (s *RegistrySuite) SetupTest() {
	cfg := s.WithConfig()

	s.Transport = NewFakeTransport()
	s.Timers = &ManualTimers{}
	s.Delegate = NewRecordingDelegate()
	s.Registry = device.NewRegistry(s.Transport, cfg,
		device.WithDelegate(s.Delegate),
		device.WithExecutors(dispatch.Inline{}, dispatch.Inline{}),
		device.WithAfterFunc(s.Timers.AfterFunc),
		device.WithLogger(s.Logger),
	)
	s.Transport.Pump()
	s.Delegate.Reset()
}

// TearDownTest resets the configuration so the next test starts from defaults.
func (s *RegistrySuite) TearDownTest() {
	s.Registry.Close()
	s.Config = nil
}

// WithConfig returns the configuration the next SetupTest applies.
func (s *RegistrySuite) WithConfig() *config.Config {
	if s.Config == nil {
		s.Config = config.Default()
	}
	return s.Config
}

// JSON returns a JSON asserter bound to the current test.
func (s *RegistrySuite) JSON() *JSONAsserter {
	return NewJSONAsserter(s.T())
}

// Discover advertises p and returns its staged record.
func (s *RegistrySuite) Discover(p *FakePeripheral) *device.Record {
	s.Transport.AddPeripheral(p)
	s.Transport.Advertise(p)
	s.Transport.Pump()

	rec, ok := s.Registry.Lookup(p.ID())
	s.Require().True(ok, "endpoint %s MUST be staged after its advertisement", p.ID())
	return rec
}

// Connect discovers p, connects it and runs the discovery cascade to completion.
func (s *RegistrySuite) Connect(p *FakePeripheral) *device.Peripheral {
	rec := s.Discover(p)
	s.Require().NoError(rec.Connect())
	s.Transport.Pump()

	periph := rec.Peripheral()
	s.Require().NotNil(periph, "endpoint %s MUST be connected", p.ID())
	s.Require().True(periph.IsRegistered(), "discovery cascade MUST have committed")
	return periph
}
