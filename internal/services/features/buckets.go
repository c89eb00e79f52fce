package features

// Bin edges are right-inclusive: label i covers (edges[i], edges[i+1]].
var (
	ficoEdges  = []float64{300, 580, 620, 660, 700, 740, 780, 850}
	ficoLabels = []string{"Very Poor", "Poor", "Fair", "Good", "Very Good", "Excellent", "Exceptional"}

	dtiEdges  = []float64{0, 10, 20, 30, 40, 100}
	dtiLabels = []string{"Very Low", "Low", "Medium", "High", "Very High"}

	incomeEdges  = []float64{0, 40000, 60000, 80000, 120000, 500000}
	incomeLabels = []string{"Low", "Lower Middle", "Middle", "Upper Middle", "High"}
)

// FicoCategory buckets a FICO score. Out-of-range scores return "".
func FicoCategory(score int) string { return cut(float64(score), ficoEdges, ficoLabels) }

// DTIBucket buckets a debt-to-income ratio. Out-of-range ratios return "".
func DTIBucket(dti float64) string { return cut(dti, dtiEdges, dtiLabels) }

// IncomeBand buckets annual income. Out-of-range incomes return "".
func IncomeBand(income float64) string { return cut(income, incomeEdges, incomeLabels) }

func cut(v float64, edges []float64, labels []string) string {
	for i := 1; i < len(edges); i++ {
		if v > edges[i-1] && v <= edges[i] {
			return labels[i-1]
		}
	}
	return ""
}
