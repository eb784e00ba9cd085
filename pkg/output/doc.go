// Package output renders command results for the terminal. Layouts are
// embedded text templates; styling comes from the registry in the styles
// subpackage and is applied through inline <Name>...</Name> tags, which are
// stripped when color is off.
package output
