package pipeline

import (
	"truckbuild/internal/buildsvc"
	"truckbuild/internal/specsource"
)

// SpreadsheetReader adapts spec spreadsheets on disk into submission
// payloads. The same VMS filter rides along on every submission of the run.
type SpreadsheetReader struct {
	VMSFilter []string
}

func (s SpreadsheetReader) Read(path string) (buildsvc.SubmitRequest, error) {
	rows, err := specsource.ReadRows(path)
	if err != nil {
		return buildsvc.SubmitRequest{}, err
	}
	req := buildsvc.SubmitRequest{
		Items:     make([]buildsvc.BuildItem, 0, len(rows)),
		VMSFilter: s.VMSFilter,
	}
	for _, row := range rows {
		req.Items = append(req.Items, buildsvc.BuildItem{
			SpecID:          row.SpecID,
			ConfigName:      row.ConfigName,
			EffectivityWeek: row.SpecWeek,
			ChangeVariants:  row.ChangeVariants,
			GG:              row.GG,
		})
	}
	return req, nil
}

// ItemsFromDir builds the run's work list from the spec bucket. One item per
// spreadsheet, job id taken from the file name.
func ItemsFromDir(dir string) ([]Item, error) {
	paths, err := specsource.ListSpecFiles(dir)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, Item{JobID: specsource.JobID(p), SpecPath: p})
	}
	return items, nil
}
