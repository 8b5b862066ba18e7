package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	csvadapter "github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/adapter/csv"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
)

const (
	parcelsCSV = `comune,provincia,foglio,particella,ettari
AGRATE BRIANZA,MB,4,10,"1,25"
AGRATE BRIANZA,MB,4,11,0.5
`
	ownersCSV = `comune,foglio,particella,codice_fiscale,nominativo,classamento,indirizzo,tipo_proprieta
AGRATE BRIANZA,4,10,RSSMRA80A01F205X,ROSSI MARIO,A/2,AGRATE BRIANZA(MB) VIA MONTE GRAPPA n. 17,Privato
AGRATE BRIANZA,4,11,VRDGPP75B02F205Y,VERDI GIUSEPPE,A/3,AGRATE BRIANZA(MB) VIA ROMA n. 9,Privato
AGRATE BRIANZA,4,11,,SENZA CODICE,A/3,AGRATE BRIANZA(MB) VIA ROMA n. 9,Privato
`
	geocodesJSON = `{
  "AGRATE BRIANZA(MB) VIA MONTE GRAPPA n. 17": {
    "status": "SUCCESS",
    "formatted_address": "Via Monte Grappa 17, 20864 Agrate Brianza MB, Italia",
    "street_name": "Via Monte Grappa", "street_number": "17",
    "postal_code": "20864", "city": "Agrate Brianza", "province": "MB"
  },
  "AGRATE BRIANZA(MB) VIA ROMA n. 9": {"status": "NO_RESULT"}
}`
)

func writeInputs(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	for name, body := range map[string]string{
		"parcels.csv":   parcelsCSV,
		"owners.csv":    ownersCSV,
		"geocodes.json": geocodesJSON,
		"campaign.yaml": "name: agrate\nparcels: parcels.csv\nowners: owners.csv\ngeocodes: geocodes.json\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MAPBOX_TOKEN", "")
	t.Setenv("MAPBOX_ENABLED", "")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand_FromFlags(t *testing.T) {
	quietEnv(t)
	dir := writeInputs(t)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "run",
		"--name", "agrate",
		"--parcels", filepath.Join(dir, "parcels.csv"),
		"--owners", filepath.Join(dir, "owners.csv"),
		"--geocodes", filepath.Join(dir, "geocodes.json"),
		"--out", outDir,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "direct mail: 1, agency: 1, excluded rows: 1")

	for _, name := range []string{
		csvadapter.RecordsFile, csvadapter.FunnelFile, csvadapter.QualityFile,
		csvadapter.MailingFile, csvadapter.ExcludedFile, csvadapter.ReportFile,
	} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	report, err := csvadapter.ReadReportFile(filepath.Join(outDir, csvadapter.ReportFile))
	require.NoError(t, err)
	require.Len(t, report.MailingList, 1)
	assert.Equal(t, "Via Monte Grappa 17, 20864 Agrate Brianza (MB)", report.MailingList[0].Address.Line())
}

func TestRunCommand_FromCampaign(t *testing.T) {
	quietEnv(t)
	dir := writeInputs(t)

	out, err := execute(t, "run", "--campaign", filepath.Join(dir, "campaign.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Campaign agrate")
	assert.FileExists(t, filepath.Join(dir, "out", "agrate", csvadapter.ReportFile))
}

func TestRunCommand_MissingInputs(t *testing.T) {
	quietEnv(t)
	_, err := execute(t, "run", "--parcels", "p.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--owners")
}

func TestRunCommand_NoGeocodesWithoutMapbox(t *testing.T) {
	quietEnv(t)
	dir := writeInputs(t)
	_, err := execute(t, "run",
		"--parcels", filepath.Join(dir, "parcels.csv"),
		"--owners", filepath.Join(dir, "owners.csv"),
		"--out", filepath.Join(dir, "out"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestGeocodeCommand_RequiresMapbox(t *testing.T) {
	quietEnv(t)
	dir := writeInputs(t)
	_, err := execute(t, "geocode", "--owners", filepath.Join(dir, "owners.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func runAndLoad(t *testing.T) (string, *domain.Report) {
	t.Helper()
	quietEnv(t)
	dir := writeInputs(t)
	_, err := execute(t, "run", "--campaign", filepath.Join(dir, "campaign.yaml"))
	require.NoError(t, err)
	path := filepath.Join(dir, "out", "agrate", csvadapter.ReportFile)
	report, err := csvadapter.ReadReportFile(path)
	require.NoError(t, err)
	return path, report
}

func TestValidateCommand_Passes(t *testing.T) {
	path, _ := runAndLoad(t)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "All validations passed.")
}

func TestValidateCommand_DetectsTampering(t *testing.T) {
	path, report := runAndLoad(t)
	for i := range report.Records {
		if report.Records[i].Confidence == domain.ConfidenceLow {
			report.Records[i].RoutingChannel = domain.ChannelDirectMail
		}
	}
	data, err := json.Marshal(report)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	out, err := execute(t, "validate", path)
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, domain.CheckRouting)
	assert.Contains(t, out, "Validation FAILED.")
}

func TestValidateReport_RecomputesConfidence(t *testing.T) {
	_, report := runAndLoad(t)
	report.Records[0].Confidence = domain.ConfidenceHigh
	report.Records[0].RoutingChannel = domain.ChannelDirectMail

	var out bytes.Buffer
	require.ErrorIs(t, validateReport(&out, report), errValidationFailed)
	assert.Contains(t, out.String(), "recomputed")
}

func TestResolveCampaign_FlagsOverrideManifest(t *testing.T) {
	dir := writeInputs(t)
	c, err := resolveCampaign(runOptions{
		campaign: filepath.Join(dir, "campaign.yaml"),
		out:      "/tmp/elsewhere",
	})
	require.NoError(t, err)
	assert.Equal(t, "agrate", c.Name)
	assert.Equal(t, filepath.Join(dir, "parcels.csv"), c.Parcels)
	assert.Equal(t, "/tmp/elsewhere", c.OutputDir)

	c, err = resolveCampaign(runOptions{parcels: "p.csv", owners: "o.csv"})
	require.NoError(t, err)
	assert.Equal(t, "campaign", c.Name)
	assert.Equal(t, filepath.Join("out", "campaign"), c.OutputDir)
}
