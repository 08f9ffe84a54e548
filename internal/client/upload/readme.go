package upload

import (
	"fmt"

	"github.com/hitoshi/smolhub/internal/model"
)

// readmeTemplate はREADMEが添付されなかった場合に生成する説明文。
// 引数は名前、名前、更新日、サイズ（MB）、識別子、識別子の順。
const readmeTemplate = "# %s\n" +
	"\n" +
	"## Overview\n" +
	"This model was uploaded to SmolHub.\n" +
	"\n" +
	"## Details\n" +
	"- Model Name: %s\n" +
	"- Upload Date: %s\n" +
	"- Size: %s\n" +
	"- Unique ID: %s\n" +
	"\n" +
	"## Usage\n" +
	"To download this model using smolhub_hub:\n" +
	"\n" +
	"```python\n" +
	"from smolhub_hub import download_model\n" +
	"\n" +
	"model_path = download_model(\"%s\")\n" +
	"```\n"

// FormatSize はバイト数を小数点以下2桁のMB表記にする。1MB = 1024*1024バイト。
func FormatSize(sizeBytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(sizeBytes)/1024/1024)
}

// GenerateReadme はREADMEが添付されなかったモデルの説明文を生成する。
func GenerateReadme(name, uniqueID string, updateDate string, sizeBytes int64) string {
	return fmt.Sprintf(readmeTemplate, name, name, updateDate, FormatSize(sizeBytes), uniqueID, uniqueID)
}

// generateReadme は検証済みフォームから説明文を生成する。
func generateReadme(v *validated) string {
	return GenerateReadme(v.name, v.uniqueID, v.updateDate.Format(model.DateLayout), v.file.Size)
}
