package main

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/internal/devicefactory"
	"github.com/srg/gattcache/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test endpoint addresses for consistent fake endpoint identification
const (
	TestDeviceAddress1 = "AA:00:00:00:00:01"
	TestDeviceAddress2 = "AA:00:00:00:00:02"
)

// CommandTestSuite runs the real commands against a FakeTransport that is pumped
// in the background, so callbacks flow while a command blocks.
// All cmd/gattcache test suites embed it.
type CommandTestSuite struct {
	suite.Suite
	Transport *testutils.FakeTransport

	originalFactory func(*logrus.Logger) (device.Transport, func(), error)
	released        int
	stopPump        chan struct{}
	pumpDone        chan struct{}
}

func (suite *CommandTestSuite) SetupSuite() {
	color.NoColor = true
}

func (suite *CommandTestSuite) SetupTest() {
	suite.Transport = testutils.NewFakeTransport()
	suite.released = 0

	suite.originalFactory = devicefactory.TransportFactory
	devicefactory.TransportFactory = func(*logrus.Logger) (device.Transport, func(), error) {
		return suite.Transport, func() { suite.released++ }, nil
	}

	// Fresh flag sets so Changed state does not leak between tests
	rootCmd.ResetFlags()
	addRootFlags(rootCmd)
	scanCmd.ResetFlags()
	addScanFlags(scanCmd)
	exploreCmd.ResetFlags()
	addExploreFlags(exploreCmd)

	suite.stopPump = make(chan struct{})
	suite.pumpDone = make(chan struct{})
	go func(transport *testutils.FakeTransport, stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				transport.Pump()
			}
		}
	}(suite.Transport, suite.stopPump, suite.pumpDone)
}

func (suite *CommandTestSuite) TearDownTest() {
	close(suite.stopPump)
	<-suite.pumpDone
	devicefactory.TransportFactory = suite.originalFactory
}

// Reset starts over with a fresh transport and flags inside one test.
func (suite *CommandTestSuite) Reset() {
	suite.TearDownTest()
	suite.SetupTest()
}

// AddPeripheral makes p known to the transport and queues its advertisement.
func (suite *CommandTestSuite) AddPeripheral(p *testutils.FakePeripheral) *testutils.FakePeripheral {
	suite.Transport.AddPeripheral(p)
	suite.Transport.Advertise(p)
	return p
}

// LoadHeartRateMonitor creates the heart rate monitor fixture endpoint.
func (suite *CommandTestSuite) LoadHeartRateMonitor(address string) *testutils.FakePeripheral {
	profile, err := testutils.LoadFixture("internal/testutils/testdata/heart_rate_monitor.json")
	suite.Require().NoError(err, "fixture MUST load")
	return testutils.CreateFakePeripheralFromJSON(address, "Pulse", "%s", profile)
}

// WriteConfig writes a YAML config into a temp dir and returns its path.
func (suite *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(suite.T().TempDir(), "gattcache.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config MUST be written")
	return path
}

// ExecuteCommand runs the root command with args, returns stdout and error.
func (suite *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func (suite *CommandTestSuite) JSON() *testutils.JSONAsserter {
	return testutils.NewJSONAsserter(suite.T())
}
