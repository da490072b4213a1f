// Package viz renders training and evaluation results in the terminal:
//
//   - loss curves and error-versus-radius profiles with asciigraph
//   - planar error heatmaps as colored block cells
//   - orbit tracks on a braille [Canvas]
//   - metric panels styled with lipgloss
//
// Every function returns a string; callers decide where it goes.
package viz
