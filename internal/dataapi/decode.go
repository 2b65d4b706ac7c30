package dataapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"capacityplanner/internal/model"
)

// 数据接口的响应外层并不统一，这里兼容三种写法：
//   {"result": {"forecastRows": [...]}} / {"forecastRows": [...]} / [...]

func isArray(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '['
}

func decodeForecastRows(data []byte) ([]model.ForecastRow, error) {
	var rows []model.ForecastRow
	if isArray(data) {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode forecast rows: %w", err)
		}
		return rows, nil
	}

	var env struct {
		Result *struct {
			ForecastRows []model.ForecastRow `json:"forecastRows"`
		} `json:"result"`
		ForecastRows []model.ForecastRow `json:"forecastRows"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode forecast rows: %w", err)
	}
	if env.Result != nil && env.Result.ForecastRows != nil {
		return env.Result.ForecastRows, nil
	}
	return env.ForecastRows, nil
}

func decodeLedgerRows(data []byte) ([]model.ForecastRow, error) {
	var rows []model.ForecastRow
	if isArray(data) {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode ledger rows: %w", err)
		}
		return rows, nil
	}

	var env struct {
		Result []model.ForecastRow `json:"result"`
		Rows   []model.ForecastRow `json:"rows"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode ledger rows: %w", err)
	}
	if env.Result != nil {
		return env.Result, nil
	}
	return env.Rows, nil
}

func decodeDemandOptions(data []byte) ([]model.DemandOption, error) {
	var opts []model.DemandOption
	if isArray(data) {
		if err := json.Unmarshal(data, &opts); err != nil {
			return nil, fmt.Errorf("failed to decode demand options: %w", err)
		}
		return opts, nil
	}

	var env struct {
		Result []model.DemandOption `json:"result"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode demand options: %w", err)
	}
	return env.Result, nil
}
