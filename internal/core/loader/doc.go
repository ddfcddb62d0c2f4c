// Package loader resolves script URLs into scripts.Module values.
//
// A URL is fetched through a Fetcher chosen by scheme, optionally
// lz4-decoded (".lz4" suffix), and then resolved by type: JavaScript sources
// become goja-backed modules, "native:" URLs resolve against a registry of Go
// modules, and anything else is a non-module resource (nil).
//
// A JavaScript module registers itself by calling script.create:
//
//	script.create("enemy", function (entity) {
//		this.hp = 10;
//		this.initialize = function () { console.log(entity.name + " ready"); };
//		this.takeDamage = function (n) { this.hp -= n; return this.hp; };
//	});
//
// Loads of the same URL that overlap in time share one fetch, and compiled
// programs are cached by content hash.
package loader
