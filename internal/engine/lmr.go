package engine

// lmrInputWeights, lmrOutputWeights and lmrBiases are the fixed-point
// weight/bias tables for the 28-unit LMR reduction-offset network: 8 boolean
// search-state inputs are combined pairwise (C(8,2) = 28) into gates, and
// each gated unit linearly combines 5 integer search-state features.
var lmrInputWeights = [28][5]int32{
	{-314, 125, 31, 157, -10}, {-137, 6, 122, 158, 50}, {-399, 57, 127, 15, -69},
	{-175, 105, 68, -219, -30}, {-15, 140, 333, -309, -101}, {-17, -250, -158, -60, 62},
	{155, -105, 223, -71, 38}, {-70, -71, -165, 302, 43}, {-384, 240, -216, 3, -70},
	{197, -284, -214, 46, -383}, {2, 211, -51, -185, 57}, {175, -172, 18, 244, -477},
	{-343, -113, 284, -145, 331}, {-123, -66, 36, 202, -176}, {-149, 147, 416, 151, -464},
	{66, -225, -232, -191, -346}, {260, 245, -26, -163, -419}, {109, 288, -256, -191, 249},
	{-168, 9, 94, 149, -52}, {-115, 249, 18, -179, -276}, {39, 73, -378, -481, 45},
	{162, -104, -73, -184, -151}, {102, 229, 63, 48, -127}, {-39, -238, 120, 67, -326},
	{154, 115, -229, 574, 156}, {-159, -273, -466, -23, 178}, {-145, 40, -246, -72, -76},
	{-40, 292, 228, 174, -163},
}

var lmrOutputWeights = [28]int32{
	52, 219, -268, 43, 89, -145, 198, -61, 107, -231,
	-120, 27, 475, 132, 409, 40, -227, -110, -477, 66,
	203, 65, 119, 48, 48, -257, 4, -239,
}

var lmrBiases = [28]int32{
	-142, 185, 58, 93, -88, -371, 35, -154, -52, -87,
	114, 115, -201, -202, 20, 160, -69, 73, 72, 132,
	-7, -298, -360, 3, -84, -157, -180, -41,
}

// LMRNetwork evaluates the reduction-offset micro-network for one search
// node. init_node(data[8]) must be called before reduction(data[5]).
type LMRNetwork struct {
	enabled [28]bool
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InitNode recomputes the enabled mask from 8 boolean search-state inputs:
// for every pair (i<j) in lexicographic order, enabled[k] = data[i] XOR data[j].
func (n *LMRNetwork) InitNode(data [8]bool) {
	k := 0
	for i := 0; i < 8; i++ {
		for j := i + 1; j < 8; j++ {
			n.enabled[k] = data[i] != data[j]
			k++
		}
	}
}

// Reduction returns the integer reduction offset for 5 integer search-state
// features, given the mask computed by the most recent InitNode call.
func (n *LMRNetwork) Reduction(data [5]int32) int {
	var reduction int32
	for i := 0; i < 28; i++ {
		if !n.enabled[i] {
			reduction += lmrOutputWeights[i] * clampInt32(lmrBiases[i], 0, 1024)
			continue
		}
		value := lmrBiases[i]
		for j := 0; j < 5; j++ {
			value += lmrInputWeights[i][j] * data[j]
		}
		reduction += lmrOutputWeights[i] * clampInt32(value, 0, 1024)
	}
	return int(reduction / 1024)
}

// lmrFeatures builds the network's boolean and integer inputs from the
// worker's current node state.
func (w *Worker) lmrFeatures(depth, ply, moveCount int, improving, isCapture, isPromotion, givesCheck, isTTMove bool, histScore, baseReduction int) ([8]bool, [5]int32) {
	bools := [8]bool{
		improving,
		moveCount > 1 && ply == 0, // cut-node proxy: all non-first root moves
		isCapture,
		isPromotion,
		givesCheck,
		isTTMove,
		depth > 6,
		moveCount > 8,
	}
	ints := [5]int32{
		int32(depth),
		int32(moveCount),
		int32(histScore / 256),
		int32(ply),
		int32(baseReduction),
	}
	return bools, ints
}
