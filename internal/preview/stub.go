//go:build !gnuplot

package preview

// Show reports ErrUnavailable; rebuild with -tags gnuplot for windows.
func Show(title, xlabel, ylabel string, groups ...Group) error {
	return ErrUnavailable
}
