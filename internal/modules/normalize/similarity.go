package normalize

// levenshtein computes the edit distance between two strings using the
// full dynamic-programming matrix. Inputs are short descriptions, so
// the quadratic cost is irrelevant here.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	matrix := make([][]int, len(rb)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(ra)+1)
	}
	for i := 0; i <= len(rb); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(ra); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(rb); i++ {
		for j := 1; j <= len(ra); j++ {
			cost := 1
			if rb[i-1] == ra[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(rb)][len(ra)]
}

// Similarity returns a score in [0, 1] where 1 means identical. Defined
// as 1 - distance/longerLength; two empty strings are identical.
func Similarity(a, b string) float64 {
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 1.0
	}
	return float64(longer-levenshtein(a, b)) / float64(longer)
}
