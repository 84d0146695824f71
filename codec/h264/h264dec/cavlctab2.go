/*
DESCRIPTION
  cavlctab2.go provides the total_zeros (tables 9-7, 9-8 and 9-9(a)) and
  run_before (table 9-10) variable-length-code tables used by the residual
  block decoding process in cavlc.go.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package h264dec

// totalZerosTable holds tables 9-7 and 9-8: total_zeros codes for 4x4
// luma/Cb/Cr blocks, indexed by tzVlcIndex (TotalCoeff(coeff_token), 1-15).
// Entry 0 is unused since total_zeros is not coded when TotalCoeff==0.
var totalZerosTable = [16]map[string]int{
	1: {
		"1": 0, "011": 1, "010": 2, "0011": 3, "0010": 4, "00011": 5, "00010": 6,
		"000011": 7, "000010": 8, "0000011": 9, "0000010": 10, "00000011": 11,
		"00000010": 12, "000000011": 13, "000000010": 14, "000000001": 15,
	},
	2: {
		"111": 0, "110": 1, "101": 2, "100": 3, "011": 4, "0101": 5, "0100": 6,
		"0011": 7, "0010": 8, "00011": 9, "00010": 10, "000011": 11, "000010": 12,
		"000001": 13, "000000": 14,
	},
	3: {
		"0101": 0, "111": 1, "110": 2, "101": 3, "0100": 4, "0011": 5, "100": 6,
		"011": 7, "0010": 8, "00011": 9, "00010": 10, "000001": 11, "00001": 12,
		"000000": 13,
	},
	4: {
		"00011": 0, "111": 1, "0101": 2, "0100": 3, "110": 4, "101": 5, "100": 6,
		"0011": 7, "011": 8, "0010": 9, "00010": 10, "00001": 11, "00000": 12,
	},
	5: {
		"0101": 0, "0100": 1, "0011": 2, "111": 3, "110": 4, "101": 5, "100": 6,
		"011": 7, "0010": 8, "00001": 9, "0001": 10, "00000": 11,
	},
	6: {
		"000001": 0, "00001": 1, "111": 2, "110": 3, "101": 4, "100": 5, "011": 6,
		"010": 7, "0001": 8, "001": 9, "000000": 10,
	},
	7: {
		"000001": 0, "00001": 1, "101": 2, "100": 3, "011": 4, "11": 5, "010": 6,
		"0001": 7, "001": 8, "000000": 9,
	},
	8: {
		"000001": 0, "0001": 1, "00001": 2, "011": 3, "11": 4, "10": 5, "010": 6,
		"001": 7, "000000": 8,
	},
	9: {
		"000001": 0, "000000": 1, "0001": 2, "11": 3, "10": 4, "001": 5, "01": 6,
		"00001": 7,
	},
	10: {
		"00001": 0, "00000": 1, "001": 2, "11": 3, "10": 4, "01": 5, "0001": 6,
	},
	11: {
		"000": 0, "0001": 1, "001": 2, "010": 3, "1": 4, "011": 5,
	},
	12: {
		"0000": 0, "0001": 1, "001": 2, "1": 3, "010": 4,
	},
	13: {
		"000": 0, "001": 1, "1": 2, "01": 3,
	},
	14: {
		"00": 0, "01": 1, "1": 2,
	},
	15: {
		"0": 0, "1": 1,
	},
}

// chromaDCTotalZerosTable holds table 9-9(a): total_zeros codes for
// chroma DC 2x2 blocks (ChromaArrayType 1), indexed by tzVlcIndex
// (TotalCoeff(coeff_token), 1-3).
var chromaDCTotalZerosTable = [4]map[string]int{
	1: {"1": 0, "01": 1, "001": 2, "000": 3},
	2: {"1": 0, "01": 1, "00": 2},
	3: {"1": 0, "0": 1},
}

// runBeforeTable holds table 9-10 for zerosLeft 1-6; zerosLeft > 6 is
// decoded algorithmically in parseRunBefore. Entry 0 is unused.
var runBeforeTable = [7]map[string]int{
	1: {"1": 0, "0": 1},
	2: {"1": 0, "01": 1, "00": 2},
	3: {"11": 0, "10": 1, "01": 2, "00": 3},
	4: {"11": 0, "10": 1, "01": 2, "001": 3, "000": 4},
	5: {"11": 0, "10": 1, "011": 2, "010": 3, "001": 4, "000": 5},
	6: {"11": 0, "000": 1, "001": 2, "011": 3, "010": 4, "101": 5, "100": 6},
}
