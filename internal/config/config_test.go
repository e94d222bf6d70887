package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Global.NbThread)
	require.Equal(t, 2000, cfg.Global.MaxConn)
	require.Equal(t, 200, cfg.Global.RunqueueDepth)
}

func TestLoadRejectsOutOfRangeNbThread(t *testing.T) {
	t.Setenv("MINCORE_GLOBAL_NBTHREAD", "999")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadReadsEnvOverride(t *testing.T) {
	t.Setenv("MINCORE_GLOBAL_NBTHREAD", "8")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Global.NbThread)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("global:\n  nbthread: 6\n  maxconn: 500\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Global.NbThread)
	require.Equal(t, 500, cfg.Global.MaxConn)
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	require.Error(t, err)
}

func TestGlobalSchedulerConfigTranslation(t *testing.T) {
	g := Global{NbThread: 3, RunqueueDepth: 64, LowLatency: true}
	sc := g.SchedulerConfig()
	require.Equal(t, 3, sc.NThreads)
	require.Equal(t, 64, sc.RunqueueDepth)
	require.True(t, sc.LowLatency)
}

func TestProxyTimeoutsTranslation(t *testing.T) {
	pt := ProxyTimeouts{Client: 30000, ClientFin: 1000, HTTPKeepAlive: 5000}
	to := pt.Timeouts()
	require.EqualValues(t, 30000, to.Client)
	require.EqualValues(t, 1000, to.ClientFin)
	require.EqualValues(t, 5000, to.HTTPKeepAlive)
}

func TestLoadCaseAdjustFileReturnsNilWhenUnset(t *testing.T) {
	g := Global{}
	cm, err := g.LoadCaseAdjustFile()
	require.NoError(t, err)
	require.Nil(t, cm)
}

func TestLoadCaseAdjustFileParsesConfiguredPath(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "case-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString("content-type Content-Type\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	g := Global{H1CaseAdjustFile: f.Name()}
	cm, err := g.LoadCaseAdjustFile()
	require.NoError(t, err)
	require.NotNil(t, cm)
	require.Equal(t, "Content-Type", cm.Lookup("content-type"))
}
