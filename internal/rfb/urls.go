package rfb

import "fmt"

// DefaultBaseURL is the RFB open-data file server root for the monthly CNPJ
// drops.
const DefaultBaseURL = "https://arquivos.receitafederal.gov.br/dados/cnpj/dados_abertos_cnpj"

// MonthRef formats a year/month pair as the YYYY-MM reference used both in
// RFB directory names and in the catalog.
func MonthRef(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ValidateMonth checks the wizard bounds for a year/month pair.
func ValidateMonth(year, month int) error {
	if year < 2018 || year > 2100 {
		return fmt.Errorf("year %d out of range [2018, 2100]", year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d out of range [1, 12]", month)
	}
	return nil
}

// MonthDirURL returns the directory URL for a monthly drop, with a trailing
// slash.
func (c *Client) MonthDirURL(year, month int) string {
	return fmt.Sprintf("%s/%s/", c.baseURL, MonthRef(year, month))
}

// PackageURL returns the URL of one package file inside a month directory.
// part is ignored for single-file datasets (part < 0).
func PackageURL(dirURL, prefix string, part int) string {
	if part < 0 {
		return fmt.Sprintf("%s%s.zip", dirURL, prefix)
	}
	return fmt.Sprintf("%s%s%d.zip", dirURL, prefix, part)
}
