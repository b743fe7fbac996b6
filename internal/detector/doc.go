// Package detector fingerprints WordPress installations from a parsed page.
//
// Detector overview:
//
//   - DetectSite runs a fixed battery of independent checks (generator meta,
//     platform paths, structural markers, asset counts, REST discovery) and
//     folds the evidence into an evidence.Verdict.
//   - VersionDetector tries the generator meta, readme.html, core asset ver
//     parameters and the RSS feed, ranks candidates and picks the best.
//   - ThemeDetector runs four ordered extraction methods, first match wins,
//     then enriches the winner from its style.css header.
//   - PluginDetector merges evidence from five extractor types by slug,
//     aggregates confidence per plugin and optionally enriches each slug from
//     the plugin registry.
//
// Detectors only read the page snapshot; they hold no per-run state, so the
// version, theme and plugin detectors can run concurrently on one page.
package detector
