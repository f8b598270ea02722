package flight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rewired-gh/forecastkit/internal/forest"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

var trainHeader = []interface{}{
	ColAirline, ColDateOfJourney, ColSource, ColDestination, ColRoute,
	ColDepTime, ColArrivalTime, ColDuration, ColTotalStops, ColAdditionalInfo, ColPrice,
}

// writeWorkbook writes a fare workbook where price is driven by airline and stops.
func writeWorkbook(t *testing.T, rows int) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetSheetRow(sheet, "A1", &trainHeader))

	airlines := []string{"IndiGo", "Jet Airways", "Air India"}
	base := map[string]int{"IndiGo": 4000, "Jet Airways": 12000, "Air India": 9000}
	stopLabels := []string{"non-stop", "1 stop", "2 stops"}
	for i := 0; i < rows; i++ {
		airline := airlines[i%len(airlines)]
		stops := (i / 3) % 3
		price := base[airline] + stops*3000
		row := []interface{}{
			airline,
			fmt.Sprintf("%d/%d/2019", 1+i%28, 3+i%4),
			"Delhi", "Cochin", "DEL → COK",
			"09:25", "04:25 10 Jun",
			fmt.Sprintf("%dh %dm", 2+stops*5, (i*7)%60),
			stopLabels[stops],
			"No info",
			fmt.Sprint(price),
		}
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row))
	}
	// One malformed row that training must skip.
	bad := []interface{}{"IndiGo", "not a date", "Delhi", "Cochin", "", "09:25", "11:00", "1h", "non-stop", "No info", "3000"}
	require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", rows+2), &bad))

	path := filepath.Join(t.TempDir(), "Data_Train.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func smallParams() forest.Params {
	p := forest.DefaultParams()
	p.Trees = 15
	p.FeatureRatio = 1
	return p
}

func trainedModel(t *testing.T) *Model {
	t.Helper()
	df, err := LoadWorkbook(writeWorkbook(t, 120))
	require.NoError(t, err)

	examples, err := Examples(df, NewPreparer())
	require.NoError(t, err)
	require.Len(t, examples, 120)

	model, report, err := Train(examples, TrainOptions{Params: smallParams(), HoldoutRatio: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 96, report.TrainRows)
	assert.Equal(t, 24, report.HoldoutRows)
	assert.Equal(t, 3, report.Vocabularies["airline"])
	return model
}

func TestLoadWorkbookMissingFile(t *testing.T) {
	_, err := LoadWorkbook(filepath.Join(t.TempDir(), "absent.xlsx"))
	var missing *models.MissingFileError
	require.ErrorAs(t, err, &missing)
}

func TestExamplesRequiresPriceColumn(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := trainHeader[:len(trainHeader)-1]
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	row := []interface{}{"IndiGo", "1/3/2019", "Delhi", "Cochin", "", "09:25", "11:00", "1h", "non-stop", "No info"}
	require.NoError(t, f.SetSheetRow(sheet, "A2", &row))
	path := filepath.Join(t.TempDir(), "Test_set.xlsx")
	require.NoError(t, f.SaveAs(path))

	df, err := LoadWorkbook(path)
	require.NoError(t, err)

	forms, err := Forms(df)
	require.NoError(t, err)
	assert.Len(t, forms, 1)

	_, err = Examples(df, NewPreparer())
	assert.ErrorContains(t, err, ColPrice)
}

func TestRunnerPredictsAndCategorises(t *testing.T) {
	runner := NewRunnerWithModel(trainedModel(t))
	require.True(t, runner.Ready())

	cheap := validForm()
	cheap.Airline = "IndiGo"
	est, err := runner.PredictForm(cheap)
	require.NoError(t, err)
	assert.InDelta(t, 4000, est.Value, 1500)
	assert.Equal(t, models.CategoryFor(est.Value), est.Category)

	pricey := validForm()
	pricey.Airline = "Jet Airways"
	pricey.Stops = "2 stops"
	pricey.Duration = "12h 10m"
	est, err = runner.PredictForm(pricey)
	require.NoError(t, err)
	assert.Greater(t, est.Value, 12000.0)
	assert.Equal(t, models.CategoryPremium, est.Category)
}

func TestRunnerUnknownCategoryUsesOther(t *testing.T) {
	model := trainedModel(t)
	assert.Equal(t, Other, model.Encoder.Airline.Encode("Vistara"))
	assert.Equal(t, Code(0), model.Encoder.Airline.Encode("  air india "))

	form := validForm()
	form.Airline = "Vistara"
	form.Source = "Atlantis"
	est, err := NewRunnerWithModel(model).PredictForm(form)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, est.Value, 0.0)
	assert.NotEmpty(t, est.Category)
}

func TestModelArtifactRoundTrip(t *testing.T) {
	model := trainedModel(t)
	path := filepath.Join(t.TempDir(), "models", "flight_price_model.gob.gz")
	require.NoError(t, SaveModel(path, model))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")

	runner := NewRunner(path)
	require.True(t, runner.Ready())

	record, err := NewPreparer().Prepare(validForm())
	require.NoError(t, err)

	want, err := NewRunnerWithModel(model).Predict(record)
	require.NoError(t, err)
	got, err := runner.Predict(record)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	vocab := runner.Vocabularies()
	assert.Equal(t, []string{"Air India", "IndiGo", "Jet Airways"}, vocab["airline"])
}

func TestRunnerWithoutArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.gob.gz")
	runner := NewRunner(path)
	assert.False(t, runner.Ready())
	assert.Nil(t, runner.Vocabularies())

	_, err := runner.PredictForm(validForm())
	var unavailable *models.ModelUnavailableError
	require.ErrorAs(t, err, &unavailable)
	var missing *models.MissingFileError
	assert.True(t, errors.As(err, &missing))
}

func TestLoadModelRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob.gz")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0644))

	_, err := LoadModel(path)
	var unavailable *models.ModelUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestWriteReport(t *testing.T) {
	report := &Report{Rows: 10, TrainRows: 8, HoldoutRows: 2, Features: FeatureNames, Holdout: forest.Score{MAE: 12.5}}
	path := filepath.Join(t.TempDir(), "reports", "train.yaml")
	require.NoError(t, WriteReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, 8, decoded["train_rows"])
	assert.Contains(t, decoded, "holdout")
}
