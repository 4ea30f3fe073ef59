package extension

// Add returns the sum of a and b. Overflow wraps around at the int64
// boundary (two's complement), so Add(math.MaxInt64, 1) == math.MinInt64.
func Add(a, b int64) int64 {
	return a + b
}

// Demo builds the demo module: one method, "add", arity 2.
func Demo() *Module {
	m, err := New("demo", "Minimal native module.",
		Method{
			Name:  "add",
			Arity: 2,
			Doc:   "Add two integers.",
			Fn: func(args []int64) (int64, error) {
				return Add(args[0], args[1]), nil
			},
		},
	)
	if err != nil {
		// The table above is fixed; New can only fail on a malformed table.
		panic(err)
	}
	return m
}
