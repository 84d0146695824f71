/*
DESCRIPTION
  cavlctab.go provides the coeff_token variable-length-code mapping table
  (table 9-5 of the specifications), consumed by the init() in cavlc.go.

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

// coeffTokenTable is a CSV representation of table 9-5: each row is
// TrailingOnes(coeff_token), TotalCoeff(coeff_token), followed by the
// coeff_token bit pattern for each of the six nC categories in the order
// 0<=nC<2, 2<=nC<4, 4<=nC<8, nC>=8, nC==-1 (chroma DC, ChromaArrayType 1),
// nC==-2 (chroma DC, ChromaArrayType 2). A "-" marks a combination that
// does not occur for that category.
//
// The nC>=8 column is the fixed-length code described immediately below
// table 9-5: 000011 for TotalCoeff==0, otherwise the 6-bit value
// (TotalCoeff-1)<<2 | TrailingOnes.
//
// ChromaArrayType 2 (4:2:2) chroma DC coding is out of scope for this
// decoder, which only produces 4:2:0 pictures, so that column is left
// unpopulated.
const coeffTokenTable = `0,0,1,11,1111,000011,01,-
0,1,000101,001011,001111,000000,000111,-
1,1,01,10,1110,000001,1,-
0,2,00000111,000111,001011,000100,000100,-
1,2,000100,00111,01111,000101,000110,-
2,2,001,011,1101,000110,001,-
0,3,000000111,0000111,001000,001000,000011,-
1,3,00000110,001010,01100,001001,0000011,-
2,3,0000101,001001,01110,001010,0000010,-
3,3,00011,0101,1100,001011,000101,-
0,4,0000000111,00000111,0001111,001100,000010,-
1,4,000000110,000110,01010,001101,00000011,-
2,4,00000101,000101,01011,001110,00000010,-
3,4,000011,0100,1011,001111,00000001,-
0,5,00000000111,00000100,0001011,010000,-,-
1,5,0000000110,0000110,01000,010001,-,-
2,5,000000101,0000101,01001,010010,-,-
3,5,0000100,00110,1010,010011,-,-
0,6,0000000001111,000000111,0001001,010100,-,-
1,6,00000000110,00000110,001110,010101,-,-
2,6,0000000101,00000101,001101,010110,-,-
3,6,00000100,001000,1001,010111,-,-
0,7,0000000001011,00000001111,0001000,011000,-,-
1,7,0000000001110,000000110,001010,011001,-,-
2,7,00000000101,000000101,001001,011010,-,-
3,7,000000100,000100,1000,011011,-,-
0,8,0000000001000,00000001011,00001111,011100,-,-
1,8,0000000001010,00000001110,0001110,011101,-,-
2,8,0000000001101,00000001101,0001101,011110,-,-
3,8,0000000100,0000100,01101,011111,-,-
0,9,00000000001111,000000001111,00001011,100000,-,-
1,9,00000000001110,00000001010,00001110,100001,-,-
2,9,0000000001001,00000001001,0001010,100010,-,-
3,9,00000000100,000000100,001100,100011,-,-
0,10,00000000001011,000000001011,000001111,100100,-,-
1,10,00000000001010,000000001110,00001010,100101,-,-
2,10,00000000001101,000000001101,00001101,100110,-,-
3,10,0000000001100,00000001100,0001100,100111,-,-
0,11,000000000001111,000000001000,000001011,101000,-,-
1,11,000000000001110,000000001010,000001110,101001,-,-
2,11,00000000001001,000000001001,00001001,101010,-,-
3,11,00000000001100,00000001000,00001100,101011,-,-
0,12,000000000001011,0000000001111,000001000,101100,-,-
1,12,000000000001010,0000000001110,000001010,101101,-,-
2,12,000000000001101,0000000001101,000001101,101110,-,-
3,12,00000000001000,000000001100,00001000,101111,-,-
0,13,0000000000001111,0000000001011,0000001101,110000,-,-
1,13,000000000000001,0000000001010,000000111,110001,-,-
2,13,000000000001001,0000000001001,000001001,110010,-,-
3,13,000000000001100,0000000001100,000001100,110011,-,-
0,14,0000000000001011,0000000000111,0000001001,110100,-,-
1,14,0000000000001110,00000000001011,0000001100,110101,-,-
2,14,0000000000001101,0000000000110,0000001011,110110,-,-
3,14,000000000001000,0000000001000,0000001010,110111,-,-
0,15,0000000000000111,00000000001001,0000000101,111000,-,-
1,15,0000000000001010,00000000001000,0000001000,111001,-,-
2,15,0000000000001001,00000000001010,0000000111,111010,-,-
3,15,0000000000001100,0000000000001,0000000110,111011,-,-
0,16,0000000000000100,00000000000111,0000000001,111100,-,-
1,16,0000000000000110,00000000000110,0000000100,111101,-,-
2,16,0000000000000101,00000000000101,0000000011,111110,-,-
3,16,0000000000001000,00000000000100,0000000010,111111,-,-
`
