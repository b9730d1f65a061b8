package ata

import (
	"strings"
)

const (
	// NodeModulesPrefix is the declaration-file namespace. Only paths under
	// it participate in acquisition.
	NodeModulesPrefix = "/node_modules/"

	// DeclarationSuffix marks a file containing only type information
	DeclarationSuffix = ".d.ts"

	// ManifestName is the package manifest filename
	ManifestName = "package.json"

	// TypesShimNamespace is the scope holding generated types-shim packages
	TypesShimNamespace = "@types"
)

// knownInvalidPackages never correspond to fetchable packages: the shim
// namespace referring to itself, and its bare mirrors. Resolved Absent with
// zero network access.
var knownInvalidPackages = map[string]struct{}{
	"@types":        {},
	"@types/@types": {},
	"@types/types":  {},
}

// IsDeclarationPath reports whether path is inside the declaration namespace
// and names either a declaration file or a package manifest.
func IsDeclarationPath(path string) bool {
	if !strings.HasPrefix(path, NodeModulesPrefix) {
		return false
	}
	if strings.HasSuffix(path, DeclarationSuffix) {
		return true
	}
	return strings.HasSuffix(path, "/"+ManifestName)
}

// PackageOf splits a namespace path into its owning bare package name and the
// package-relative remainder (leading slash included):
//
//	/node_modules/lodash/fp/curry.d.ts   -> "lodash", "/fp/curry.d.ts"
//	/node_modules/@types/react/index.d.ts -> "@types/react", "/index.d.ts"
func PackageOf(path string) (pkg string, rel string, ok bool) {
	if !strings.HasPrefix(path, NodeModulesPrefix) {
		return "", "", false
	}

	rest := path[len(NodeModulesPrefix):]
	parts := strings.SplitN(rest, "/", 3)

	if strings.HasPrefix(rest, "@") {
		// Scoped package: two segments form the name
		if len(parts) < 3 || parts[1] == "" {
			return "", "", false
		}
		return parts[0] + "/" + parts[1], "/" + parts[2], true
	}

	if len(parts) < 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], "/" + strings.Join(parts[1:], "/"), true
}

// IsKnownInvalidPackage reports whether pkg is on the hardcoded exclusion list.
func IsKnownInvalidPackage(pkg string) bool {
	_, invalid := knownInvalidPackages[pkg]
	return invalid
}

// ShimTarget returns the original package a types-shim package wraps.
// Scoped originals are escaped with a double underscore inside the shim name:
//
//	@types/lodash        -> "lodash"
//	@types/babel__core   -> "@babel/core"
//
// ok is false when pkg is not a shim package.
func ShimTarget(pkg string) (string, bool) {
	if !strings.HasPrefix(pkg, TypesShimNamespace+"/") {
		return "", false
	}

	name := pkg[len(TypesShimNamespace)+1:]
	if name == "" {
		return "", false
	}

	if scope, rest, found := strings.Cut(name, "__"); found {
		return "@" + scope + "/" + rest, true
	}
	return name, true
}
