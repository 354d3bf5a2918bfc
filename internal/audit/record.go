// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Record 单次工具调用的审计记录；参数与结果在写入前已脱敏
type Record struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id"`
	SubjectID     string         `json:"subject_id"`
	Role          string         `json:"role"`
	Tool          string         `json:"tool"`
	Adapter       string         `json:"adapter"`
	Status        string         `json:"status"` // succeeded / failed / rejected / cancelled
	Code          string         `json:"code,omitempty"`
	ErrorDetail   string         `json:"error_detail,omitempty"`
	Anomaly       string         `json:"anomaly,omitempty"` // 结果 schema 的非致命偏差
	Params        map[string]any `json:"params,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	Attempts      int            `json:"attempts"`
	LatencyMS     int64          `json:"latency_ms"`
	Regulated     bool           `json:"regulated"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	PrevHash      string         `json:"prev_hash"`
	Hash          string         `json:"hash"`
}

// ComputeRecordHash 计算单条记录的哈希
// Hash = SHA256(ID|CorrelationID|SubjectID|Tool|Status|StartedAt|FinishedAt|PrevHash)
func ComputeRecordHash(r Record) string {
	h := sha256.New()
	h.Write([]byte(r.ID))
	h.Write([]byte("|"))
	h.Write([]byte(r.CorrelationID))
	h.Write([]byte("|"))
	h.Write([]byte(r.SubjectID))
	h.Write([]byte("|"))
	h.Write([]byte(r.Tool))
	h.Write([]byte("|"))
	h.Write([]byte(r.Status))
	h.Write([]byte("|"))
	h.Write([]byte(r.StartedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte("|"))
	h.Write([]byte(r.FinishedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte("|"))
	h.Write([]byte(r.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateChain 验证一段按写入顺序排列的审计记录的哈希链
func ValidateChain(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if records[0].PrevHash != "" {
		return fmt.Errorf("first record prev_hash should be empty, got: %s", records[0].PrevHash)
	}
	for i := range records {
		if i > 0 && records[i].PrevHash != records[i-1].Hash {
			return fmt.Errorf("hash chain broken at record %d: prev_hash=%s, expected=%s",
				i, records[i].PrevHash, records[i-1].Hash)
		}
		expected := ComputeRecordHash(records[i])
		if expected != records[i].Hash {
			return fmt.Errorf("record %d hash mismatch: expected %s, got %s", i, expected, records[i].Hash)
		}
	}
	return nil
}
