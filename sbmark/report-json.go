package sbmark

import (
	"os"
)

func ToJson(summary *Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func FromJsonFile(jsonFile string) (*Summary, error) {
	jsonData, err := os.ReadFile(jsonFile)
	if err != nil {
		return nil, err
	}
	return FromJsonByteArray(jsonData)
}

func FromJsonByteArray(jsonData []byte) (*Summary, error) {
	s := &Summary{}
	err := json.Unmarshal(jsonData, s)
	return s, err
}
