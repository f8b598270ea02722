package flight

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/xuri/excelize/v2"
)

// Workbook column names.
const (
	ColAirline        = "Airline"
	ColDateOfJourney  = "Date_of_Journey"
	ColSource         = "Source"
	ColDestination    = "Destination"
	ColRoute          = "Route"
	ColDepTime        = "Dep_Time"
	ColArrivalTime    = "Arrival_Time"
	ColDuration       = "Duration"
	ColTotalStops     = "Total_Stops"
	ColAdditionalInfo = "Additional_Info"
	ColPrice          = "Price"
)

var formColumns = []string{
	ColAirline, ColDateOfJourney, ColSource, ColDestination,
	ColDepTime, ColArrivalTime, ColDuration, ColTotalStops, ColAdditionalInfo,
}

// LoadWorkbook reads the first sheet of an .xlsx file into a string-typed frame.
// Short rows are padded so every column has a value.
func LoadWorkbook(path string) (dataframe.DataFrame, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dataframe.DataFrame{}, &models.MissingFileError{Path: path}
		}
		return dataframe.DataFrame{}, fmt.Errorf("failed to stat workbook: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(rows) < 2 {
		return dataframe.DataFrame{}, fmt.Errorf("workbook %s has no data rows", path)
	}

	width := len(rows[0])
	records := make([][]string, 0, len(rows))
	for i, row := range rows {
		if i > 0 && isBlank(row) {
			continue
		}
		padded := make([]string, width)
		copy(padded, row)
		for j := range padded {
			padded[j] = strings.TrimSpace(padded[j])
		}
		records = append(records, padded)
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to build frame: %w", df.Err)
	}
	return df, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func requireColumns(df dataframe.DataFrame, cols []string) error {
	have := make(map[string]bool)
	for _, n := range df.Names() {
		have[n] = true
	}
	var missing []string
	for _, c := range cols {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("workbook is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Forms converts every frame row into a raw Form.
func Forms(df dataframe.DataFrame) ([]Form, error) {
	if err := requireColumns(df, formColumns); err != nil {
		return nil, err
	}
	col := func(name string) []string { return df.Col(name).Records() }
	airline, date, source, dest := col(ColAirline), col(ColDateOfJourney), col(ColSource), col(ColDestination)
	dep, arr, dur, stops, info := col(ColDepTime), col(ColArrivalTime), col(ColDuration), col(ColTotalStops), col(ColAdditionalInfo)

	forms := make([]Form, df.Nrow())
	for i := range forms {
		forms[i] = Form{
			Airline:        airline[i],
			Source:         source[i],
			Destination:    dest[i],
			Date:           date[i],
			DepTime:        dep[i],
			ArrTime:        arr[i],
			Duration:       dur[i],
			Stops:          stops[i],
			AdditionalInfo: info[i],
		}
	}
	return forms, nil
}

// Example is one labelled training row.
type Example struct {
	Record *models.FlightRecord
	Price  float64
}

// Examples prepares every row of a training frame. Rows that fail preparation
// or carry no usable price are skipped with a warning, as is common for the
// handful of incomplete rows in the public fare dataset.
func Examples(df dataframe.DataFrame, p *Preparer) ([]Example, error) {
	if err := requireColumns(df, append(formColumns, ColPrice)); err != nil {
		return nil, err
	}
	forms, err := Forms(df)
	if err != nil {
		return nil, err
	}
	prices := df.Col(ColPrice).Records()

	examples := make([]Example, 0, len(forms))
	skipped := 0
	for i, form := range forms {
		record, err := p.Prepare(form)
		if err != nil {
			logger.Debug("Skipping row %d: %v", i+2, err)
			skipped++
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(prices[i], ",", ""), 64)
		if err != nil || price < 0 {
			logger.Debug("Skipping row %d: bad price %q", i+2, prices[i])
			skipped++
			continue
		}
		examples = append(examples, Example{Record: record, Price: price})
	}
	if skipped > 0 {
		logger.Warn("Skipped %d of %d training rows", skipped, len(forms))
	}
	if len(examples) == 0 {
		return nil, errors.New("no usable training rows")
	}
	return examples, nil
}
