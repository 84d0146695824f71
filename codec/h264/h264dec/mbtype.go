/*
NAME
  mbtype.go

DESCRIPTION
  mbtype.go maps mb_type and sub_mb_type values to their names and
  prediction modes, per tables 7-11 through 7-14 and 7-17/7-18 of
  ITU-T H.264.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

import (
	"fmt"

	"github.com/pkg/errors"
)

// iMbTypeNames holds the mb_type names of table 7-11 for
// mb_type values 0-25 under I slices (and SI slices excluding SI itself,
// which is handled separately by callers).
var iMbTypeNames = [26]string{
	0:  "I_NxN",
	1:  "I_16x16_0_0_0",
	2:  "I_16x16_1_0_0",
	3:  "I_16x16_2_0_0",
	4:  "I_16x16_3_0_0",
	5:  "I_16x16_0_1_0",
	6:  "I_16x16_1_1_0",
	7:  "I_16x16_2_1_0",
	8:  "I_16x16_3_1_0",
	9:  "I_16x16_0_2_0",
	10: "I_16x16_1_2_0",
	11: "I_16x16_2_2_0",
	12: "I_16x16_3_2_0",
	13: "I_16x16_0_0_1",
	14: "I_16x16_1_0_1",
	15: "I_16x16_2_0_1",
	16: "I_16x16_3_0_1",
	17: "I_16x16_0_1_1",
	18: "I_16x16_1_1_1",
	19: "I_16x16_2_1_1",
	20: "I_16x16_3_1_1",
	21: "I_16x16_0_2_1",
	22: "I_16x16_1_2_1",
	23: "I_16x16_2_2_1",
	24: "I_16x16_3_2_1",
	25: "I_PCM",
}

// pMbTypeNames holds the mb_type names of table 7-13 for
// mb_type values 0-4 under P slices (values 5-30 reuse the I table with
// mb_type-5 as the index, per 7.3.5 and 7.4.5).
var pMbTypeNames = [5]string{
	0: "P_L0_16x16",
	1: "P_L0_L0_16x8",
	2: "P_L0_L0_8x16",
	3: "P_8x8",
	4: "P_8x8ref0",
}

// bMbTypeNames holds the mb_type names of table 7-14 for
// mb_type values 0-22 under B slices (values 23-48 reuse the I table with
// mb_type-23 as the index, per 7.3.5 and 7.4.5).
var bMbTypeNames = [23]string{
	0:  "B_Direct_16x16",
	1:  "B_L0_16x16",
	2:  "B_L1_16x16",
	3:  "B_Bi_16x16",
	4:  "B_L0_L0_16x8",
	5:  "B_L0_L0_8x16",
	6:  "B_L1_L1_16x8",
	7:  "B_L1_L1_8x16",
	8:  "B_L0_L1_16x8",
	9:  "B_L0_L1_8x16",
	10: "B_L1_L0_16x8",
	11: "B_L1_L0_8x16",
	12: "B_L0_Bi_16x8",
	13: "B_L0_Bi_8x16",
	14: "B_L1_Bi_16x8",
	15: "B_L1_Bi_8x16",
	16: "B_Bi_L0_16x8",
	17: "B_Bi_L0_8x16",
	18: "B_Bi_L1_16x8",
	19: "B_Bi_L1_8x16",
	20: "B_Bi_Bi_16x8",
	21: "B_Bi_Bi_8x16",
	22: "B_8x8",
}

// MbTypeName returns the mb_type name, e.g. "I_NxN" or "P_L0_16x16", for
// mbType under the given slice type, following tables 7-11, 7-13 and 7-14.
// sliceTypeName is one of "P", "B", "I", "SP" or "SI" (as produced by
// SliceTypeName). An out-of-range mbType returns "" since callers treat an
// unrecognised name as a non-match rather than an error.
func MbTypeName(sliceTypeName string, mbType int) string {
	switch sliceTypeName {
	case "I":
		if mbType >= 0 && mbType < len(iMbTypeNames) {
			return iMbTypeNames[mbType]
		}
	case "SI":
		if mbType == 0 {
			return "SI"
		}
		if mbType-1 >= 0 && mbType-1 < len(iMbTypeNames) {
			return iMbTypeNames[mbType-1]
		}
	case "P", "SP":
		if mbType >= 0 && mbType < len(pMbTypeNames) {
			return pMbTypeNames[mbType]
		}
		if mbType-5 >= 0 && mbType-5 < len(iMbTypeNames) {
			return iMbTypeNames[mbType-5]
		}
	case "B":
		if mbType >= 0 && mbType < len(bMbTypeNames) {
			return bMbTypeNames[mbType]
		}
		if mbType-23 >= 0 && mbType-23 < len(iMbTypeNames) {
			return iMbTypeNames[mbType-23]
		}
	}
	return ""
}

// iNxNPredMode returns the prediction mode for an I_NxN macroblock, which
// depends on transform_size_8x8_flag (8.3.1/8.3.2 vs 8.3.2.1).
func iNxNPredMode(data *SliceData) mbPartPredMode {
	if data != nil && data.TransformSize8x8Flag {
		return intra8x8
	}
	return intra4x4
}

// mbPartPredModeByName returns the MbPartPredMode (table 7-11, 7-13 or
// 7-14's "Pred mode" columns) for the given mb_type name and partition
// index. mbPartIdx only distinguishes predictions for mb_types with two
// partitions carrying independent modes (e.g. B_L0_L1_16x8); it is
// ignored otherwise.
func mbPartPredModeByName(data *SliceData, name string, mbPartIdx int) (mbPartPredMode, error) {
	switch name {
	case "I_NxN":
		return iNxNPredMode(data), nil
	case "I_PCM":
		return naMbPartPredMode, nil
	case "SI":
		return intra4x4, nil
	}
	if len(name) >= len("I_16x16") && name[:len("I_16x16")] == "I_16x16" {
		return intra16x16, nil
	}
	switch name {
	case "P_L0_16x16", "P_L0_L0_16x8", "P_L0_L0_8x16":
		return predL0, nil
	case "P_8x8", "P_8x8ref0":
		return naMbPartPredMode, nil
	case "B_Direct_16x16", "B_8x8":
		return direct, nil
	case "B_L0_16x16", "B_L0_L0_16x8", "B_L0_L0_8x16":
		return predL0, nil
	case "B_L1_16x16", "B_L1_L1_16x8", "B_L1_L1_8x16":
		return predL1, nil
	case "B_Bi_16x16", "B_Bi_Bi_16x8", "B_Bi_Bi_8x16":
		return biPred, nil
	case "B_L0_L1_16x8", "B_L0_L1_8x16":
		if mbPartIdx == 0 {
			return predL0, nil
		}
		return predL1, nil
	case "B_L1_L0_16x8", "B_L1_L0_8x16":
		if mbPartIdx == 0 {
			return predL1, nil
		}
		return predL0, nil
	case "B_L0_Bi_16x8", "B_L0_Bi_8x16":
		if mbPartIdx == 0 {
			return predL0, nil
		}
		return biPred, nil
	case "B_L1_Bi_16x8", "B_L1_Bi_8x16":
		if mbPartIdx == 0 {
			return predL1, nil
		}
		return biPred, nil
	case "B_Bi_L0_16x8", "B_Bi_L0_8x16":
		if mbPartIdx == 0 {
			return biPred, nil
		}
		return predL0, nil
	case "B_Bi_L1_16x8", "B_Bi_L1_8x16":
		if mbPartIdx == 0 {
			return biPred, nil
		}
		return predL1, nil
	}
	return naMbPartPredMode, errors.Errorf("unrecognised mb_type name %q for MbPartPredMode", name)
}

// MbPartPredMode returns the macroblock partition prediction mode of
// mbType's mbPartIdx'th partition under the given slice type, per tables
// 7-11, 7-13 and 7-14's "Pred mode" columns.
func MbPartPredMode(data *SliceData, sliceTypeName string, mbType int, mbPartIdx int) (mbPartPredMode, error) {
	name := MbTypeName(sliceTypeName, mbType)
	if name == "" {
		return naMbPartPredMode, errors.Errorf("mb_type %d is not valid for slice type %q", mbType, sliceTypeName)
	}
	return mbPartPredModeByName(data, name, mbPartIdx)
}

// intra16x16CodedBlockPattern derives CodedBlockPatternLuma/Chroma for an
// I_16x16 macroblock from its mb_type name, e.g. "I_16x16_3_2_1". Unlike
// every other mb_type, I_16x16's mb_type value itself carries the coded
// block pattern (table 7-11's 2nd and 3rd suffix digits) rather than the
// bitstream coding a separate coded_block_pattern syntax element (7.3.5,
// 7.4.5). ok is false if name is not an I_16x16_*_*_* name.
func intra16x16CodedBlockPattern(name string) (lumaCBP, chromaCBP int, ok bool) {
	const prefix = "I_16x16_"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, 0, false
	}
	suffix := name[len(prefix):]
	var predMode, cbpChroma, cbpLumaFlag int
	n, err := fmt.Sscanf(suffix, "%d_%d_%d", &predMode, &cbpChroma, &cbpLumaFlag)
	if err != nil || n != 3 {
		return 0, 0, false
	}
	if cbpLumaFlag != 0 {
		lumaCBP = 15
	}
	return lumaCBP, cbpChroma, true
}
